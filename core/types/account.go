package types

import "math/big"

// Account tracks the settlement-currency balance for an identity. Balances are
// denominated in the smallest indivisible unit of the currency.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureAccount returns a usable account value, replacing nil pointers with
// zeroed balances so callers never have to nil-check before arithmetic.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}
