package fees

import (
	"math/big"
	"testing"
)

func TestCalculateSplitsExactly(t *testing.T) {
	cases := []struct {
		name    string
		amount  string
		percent uint32
		fee     string
		net     string
	}{
		{"ten percent", "1000", 10, "100", "900"},
		{"floor division", "105", 10, "10", "95"},
		{"nine percent of 0.23 units", "230000000000000000", 9, "20700000000000000", "209300000000000000"},
		{"zero fee", "1000", 0, "0", "1000"},
		{"full fee", "1000", 100, "1000", "0"},
		{"dust below one unit", "7", 9, "0", "7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount, _ := new(big.Int).SetString(tc.amount, 10)
			fee, net := Calculate(amount, tc.percent)
			if fee.String() != tc.fee {
				t.Fatalf("fee: got %s want %s", fee, tc.fee)
			}
			if net.String() != tc.net {
				t.Fatalf("net: got %s want %s", net, tc.net)
			}
			sum := new(big.Int).Add(fee, net)
			if sum.Cmp(amount) != 0 {
				t.Fatalf("fee+net = %s, want %s", sum, amount)
			}
		})
	}
}

func TestCalculateDegenerateInputs(t *testing.T) {
	fee, net := Calculate(nil, 9)
	if fee.Sign() != 0 || net.Sign() != 0 {
		t.Fatalf("nil amount: got fee=%s net=%s", fee, net)
	}
	fee, net = Calculate(big.NewInt(-5), 9)
	if fee.Sign() != 0 || net.Sign() != 0 {
		t.Fatalf("negative amount: got fee=%s net=%s", fee, net)
	}
}

func TestCalculateDoesNotMutateInput(t *testing.T) {
	amount := big.NewInt(1000)
	Calculate(amount, 9)
	if amount.Int64() != 1000 {
		t.Fatalf("input mutated to %s", amount)
	}
}
