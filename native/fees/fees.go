package fees

import "math/big"

// MaxPercent bounds the configurable platform fee.
const MaxPercent uint32 = 100

// Calculate splits a lease payment into the platform fee and the net amount
// owed to the listing owner. The fee is floor(amount * feePercent / 100); the
// net amount is the remainder, so fee+net always equals the input exactly.
// A nil or non-positive amount yields two zero values.
func Calculate(amount *big.Int, feePercent uint32) (fee, net *big.Int) {
	fee = big.NewInt(0)
	net = big.NewInt(0)
	if amount == nil || amount.Sign() <= 0 {
		return fee, net
	}
	net = new(big.Int).Set(amount)
	if feePercent == 0 {
		return fee, net
	}
	if feePercent >= MaxPercent {
		return net, big.NewInt(0)
	}
	fee = new(big.Int).Mul(amount, big.NewInt(int64(feePercent)))
	fee.Div(fee, big.NewInt(int64(MaxPercent)))
	net = new(big.Int).Sub(net, fee)
	return fee, net
}
