package lease

import (
	"math/big"
	"testing"
)

func TestListingKeyIsStable(t *testing.T) {
	a := ListingKey(newTestAddress(0xC0), 1)
	b := ListingKey(newTestAddress(0xC0), 1)
	if a != b {
		t.Fatal("key derivation must be deterministic")
	}
	if a == ListingKey(newTestAddress(0xC0), 2) {
		t.Fatal("distinct asset ids must produce distinct keys")
	}
	if a == ListingKey(newTestAddress(0xC1), 1) {
		t.Fatal("distinct collections must produce distinct keys")
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := &Listing{
		Collection:   newTestAddress(0xC0),
		AssetID:      7,
		Owner:        newTestAddress(0x02),
		Price:        big.NewInt(100),
		MinTime:      10,
		MaxTime:      20,
		LatestReward: big.NewInt(5),
		TotalRewards: big.NewInt(15),
	}
	clone := original.Clone()
	clone.Price.SetInt64(999)
	clone.LatestReward.SetInt64(999)
	clone.TotalRewards.SetInt64(999)
	if original.Price.Int64() != 100 || original.LatestReward.Int64() != 5 || original.TotalRewards.Int64() != 15 {
		t.Fatalf("clone aliases original amounts: %+v", original)
	}
}

func TestCloneNormalizesNilAmounts(t *testing.T) {
	clone := (&Listing{}).Clone()
	if clone.Price == nil || clone.LatestReward == nil || clone.TotalRewards == nil {
		t.Fatal("clone must replace nil amounts with zero values")
	}
}

func TestSanitizeListing(t *testing.T) {
	_, err := SanitizeListing(nil)
	if err == nil {
		t.Fatal("nil listing must be rejected")
	}
	_, err = SanitizeListing(&Listing{Price: big.NewInt(-1)})
	if err == nil {
		t.Fatal("negative price must be rejected")
	}
	_, err = SanitizeListing(&Listing{MinTime: 20, MaxTime: 10})
	if err == nil {
		t.Fatal("inverted duration bounds must be rejected")
	}
	sanitized, err := SanitizeListing(&Listing{OriginNetwork: "  chain-remote  ", MinTime: 10, MaxTime: 20})
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.OriginNetwork != "chain-remote" {
		t.Fatalf("origin network not trimmed: %q", sanitized.OriginNetwork)
	}
}

func TestActive(t *testing.T) {
	listing := &Listing{Borrower: newTestAddress(0x03), Expires: 100}
	if !listing.Active(99) {
		t.Fatal("lease with a borrower before expiry is active")
	}
	if listing.Active(100) {
		t.Fatal("lease at its expiry timestamp is no longer active")
	}
	if (&Listing{Expires: 100}).Active(50) {
		t.Fatal("lease without a borrower is never active")
	}
}
