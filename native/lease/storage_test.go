package lease

import (
	"math/big"
	"testing"

	"leasenet/core/types"
	"leasenet/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemDB())
}

func TestStoreListingRoundTrip(t *testing.T) {
	store := newTestStore(t)
	listing := &Listing{
		Collection:    newTestAddress(0xC0),
		AssetID:       42,
		Owner:         newTestAddress(0x02),
		Price:         big.NewInt(230),
		MinTime:       43200,
		MaxTime:       86400,
		Deadline:      0,
		Borrower:      newTestAddress(0x03),
		LatestReward:  big.NewInt(230),
		TotalRewards:  big.NewInt(460),
		OriginNetwork: "chain-remote",
		Expires:       1_700_086_400,
		StartedAt:     1_700_000_000,
	}
	if err := store.ListingPut(listing); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok := store.ListingGet(listing.Key())
	if !ok {
		t.Fatal("listing not found after put")
	}
	if loaded.Owner != listing.Owner || loaded.Borrower != listing.Borrower {
		t.Fatalf("identity mismatch: %+v", loaded)
	}
	if loaded.Price.Cmp(listing.Price) != 0 || loaded.LatestReward.Cmp(listing.LatestReward) != 0 || loaded.TotalRewards.Cmp(listing.TotalRewards) != 0 {
		t.Fatalf("amount mismatch: %+v", loaded)
	}
	if loaded.OriginNetwork != "chain-remote" || loaded.Expires != listing.Expires || loaded.StartedAt != listing.StartedAt {
		t.Fatalf("lease state mismatch: %+v", loaded)
	}
	if err := store.ListingDelete(listing.Key()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.ListingGet(listing.Key()); ok {
		t.Fatal("listing must not survive delete")
	}
}

func TestStoreRejectsInvalidListing(t *testing.T) {
	store := newTestStore(t)
	if err := store.ListingPut(&Listing{MinTime: 20, MaxTime: 10}); err == nil {
		t.Fatal("invalid listing must be rejected")
	}
}

func TestStoreWrappedAndOriginal(t *testing.T) {
	store := newTestStore(t)
	original := newTestAddress(0xC0)
	wrapped := newTestAddress(0xC1)
	if _, ok := store.WrappedGet(original); ok {
		t.Fatal("unexpected wrapped entry")
	}
	if err := store.WrappedPut(original, wrapped); err != nil {
		t.Fatalf("wrapped put: %v", err)
	}
	got, ok := store.WrappedGet(original)
	if !ok || got != wrapped {
		t.Fatalf("wrapped get: %v %v", got, ok)
	}

	remote := newTestAddress(0xD0)
	if err := store.OriginalPut("chain-remote", remote); err != nil {
		t.Fatalf("original put: %v", err)
	}
	gotRemote, ok := store.OriginalGet("chain-remote")
	if !ok || gotRemote != remote {
		t.Fatalf("original get: %v %v", gotRemote, ok)
	}
	if err := store.OriginalPut("  ", remote); err == nil {
		t.Fatal("blank network must be rejected")
	}
}

func TestStoreAccounts(t *testing.T) {
	store := newTestStore(t)
	addr := newTestAddress(0x05)
	acc, err := store.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.Balance.Sign() != 0 {
		t.Fatalf("unknown account must read as zero: %s", acc.Balance)
	}
	acc.Balance = big.NewInt(1000)
	acc.Nonce = 3
	if err := store.PutAccount(addr[:], acc); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, err := store.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Balance.Int64() != 1000 || loaded.Nonce != 3 {
		t.Fatalf("account mismatch: %+v", loaded)
	}
	if err := store.PutAccount(addr[:], &types.Account{Balance: big.NewInt(-1)}); err == nil {
		t.Fatal("negative balance must be rejected")
	}
}

func TestStoreLinkers(t *testing.T) {
	store := newTestStore(t)
	all, err := store.LinkerAll()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty linker table, got %v", all)
	}
	if err := store.LinkerPut("chain-a", "0xabc"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.LinkerPut("chain-b", "0xdef"); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Replacement keeps a single entry per network.
	if err := store.LinkerPut("chain-a", "0x123"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	all, err = store.LinkerAll()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 || all["chain-a"] != "0x123" || all["chain-b"] != "0xdef" {
		t.Fatalf("linker table mismatch: %v", all)
	}
}

func TestStoreLinkerNetworkNamedIndex(t *testing.T) {
	store := newTestStore(t)
	if err := store.LinkerPut("chain-a", "0xabc"); err != nil {
		t.Fatalf("put: %v", err)
	}
	// A network literally named "index" must not shadow the index record.
	if err := store.LinkerPut("index", "0xdef"); err != nil {
		t.Fatalf("put: %v", err)
	}
	all, err := store.LinkerAll()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 || all["chain-a"] != "0xabc" || all["index"] != "0xdef" {
		t.Fatalf("linker table mismatch: %v", all)
	}
}

func TestEngineAgainstPersistentStore(t *testing.T) {
	db := storage.NewMemDB()
	store := NewStore(db)
	engine := NewEngine()
	engine.SetState(store)
	engine.SetAssetVault(newMockVault())
	engine.SetLeaseMinter(&mockMinter{})
	engine.SetAdmin(adminAddr)
	engine.SetFeeTerms(feeReceiver, feePercent)
	engine.SetPaymentVault(vaultAddr)
	engine.SetLocalNetwork(localNetwork)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	if err := engine.Whitelist(adminAddr, collection, wrappedAddr); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if _, err := engine.Lend(ownerAddr, collection, testAssetID, testPrice(), testMinTime, testMaxTime, 0); err != nil {
		t.Fatalf("lend: %v", err)
	}
	if err := store.PutAccount(borrowerAddr[:], &types.Account{Balance: testPrice()}); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := engine.Borrow(borrowerAddr, collection, testAssetID, now+testMaxTime, testPrice()); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// A second engine over the same database sees the committed state.
	reloaded := NewStore(db)
	info, ok := reloaded.ListingGet(ListingKey(collection, testAssetID))
	if !ok {
		t.Fatal("listing not visible through fresh store")
	}
	if info.Borrower != borrowerAddr || info.LatestReward.Cmp(testPrice()) != 0 {
		t.Fatalf("persisted lease mismatch: %+v", info)
	}
}
