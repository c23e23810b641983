package relay

import (
	"errors"
	"math/big"
	"testing"

	"leasenet/native/lease"
	"leasenet/storage"
)

type nopVault struct{}

func (nopVault) Custody(collection [20]byte, assetID uint64, from [20]byte) error { return nil }
func (nopVault) Release(collection [20]byte, assetID uint64, to [20]byte) error   { return nil }

type nopMinter struct{}

func (nopMinter) Adopt(wrapped [20]byte) error { return nil }
func (nopMinter) MintLease(wrapped [20]byte, assetID uint64, to [20]byte, expires int64) error {
	return nil
}
func (nopMinter) BurnLease(wrapped [20]byte, assetID uint64) error { return nil }

type gatewayFixture struct {
	gateway *Gateway
	engine  *lease.Engine
	store   *lease.Store
	now     int64
}

func fillAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

const (
	remoteNetwork = "chain-remote"
	remoteLinker  = "0x00000000000000000000000000000000000000AB"
)

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	admin := fillAddress(0x01)
	store := lease.NewStore(storage.NewMemDB())
	f := &gatewayFixture{store: store, now: 1_700_000_000}

	f.engine = lease.NewEngine()
	f.engine.SetState(store)
	f.engine.SetAssetVault(nopVault{})
	f.engine.SetLeaseMinter(nopMinter{})
	f.engine.SetAdmin(admin)
	f.engine.SetFeeTerms(fillAddress(0xFE), 9)
	f.engine.SetPaymentVault(fillAddress(0xAA))
	f.engine.SetLocalNetwork("chain-local")
	f.engine.SetNowFunc(func() int64 { return f.now })

	registry := NewRegistry(admin, store)
	if err := registry.AddLinker(admin, remoteNetwork, remoteLinker); err != nil {
		t.Fatalf("add linker: %v", err)
	}
	f.gateway = NewGateway(registry, f.engine, admin, nil)

	collection := fillAddress(0xC0)
	if err := f.engine.Whitelist(admin, collection, fillAddress(0xC1)); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if _, err := f.engine.Lend(fillAddress(0x02), collection, 1, big.NewInt(230), 43200, 86400, 0); err != nil {
		t.Fatalf("lend: %v", err)
	}
	return f
}

func (f *gatewayFixture) borrowPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := EncodeCommand(&Command{
		Kind:       CommandBorrow,
		Collection: fillAddress(0xC0),
		AssetID:    1,
		Borrower:   fillAddress(0x03),
		Expires:    uint64(f.now + 86400),
		Payment:    big.NewInt(230),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return payload
}

func TestExecuteRejectsUnknownNetwork(t *testing.T) {
	f := newGatewayFixture(t)
	err := f.gateway.Execute(Message{SourceNetwork: "chain-unknown", SourceAddress: remoteLinker, Payload: f.borrowPayload(t)})
	if !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("expected ErrUnknownNetwork, got %v", err)
	}
}

func TestExecuteRejectsUntrustedSender(t *testing.T) {
	f := newGatewayFixture(t)
	err := f.gateway.Execute(Message{SourceNetwork: remoteNetwork, SourceAddress: "0x00000000000000000000000000000000000000FF", Payload: f.borrowPayload(t)})
	if !errors.Is(err, ErrUntrustedSender) {
		t.Fatalf("expected ErrUntrustedSender, got %v", err)
	}
	info, _ := f.engine.LendingInfo(fillAddress(0xC0), 1)
	if info.Borrower != ([20]byte{}) {
		t.Fatal("rejected message must not settle")
	}
}

func TestExecuteAcceptsCaseInsensitiveSender(t *testing.T) {
	f := newGatewayFixture(t)
	lower := "0x00000000000000000000000000000000000000ab"
	if err := f.gateway.Execute(Message{SourceNetwork: remoteNetwork, SourceAddress: lower, Payload: f.borrowPayload(t)}); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestExecuteRejectsBadPayload(t *testing.T) {
	f := newGatewayFixture(t)
	err := f.gateway.Execute(Message{SourceNetwork: remoteNetwork, SourceAddress: remoteLinker, Payload: []byte{0xde, 0xad}})
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload, got %v", err)
	}
}

func TestExecuteSettlesRemoteBorrow(t *testing.T) {
	f := newGatewayFixture(t)
	if err := f.gateway.Execute(Message{SourceNetwork: remoteNetwork, SourceAddress: remoteLinker, Payload: f.borrowPayload(t)}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	info, ok := f.engine.LendingInfo(fillAddress(0xC0), 1)
	if !ok {
		t.Fatal("listing missing")
	}
	if info.Borrower != fillAddress(0x03) {
		t.Fatalf("borrower mismatch: %+v", info)
	}
	// The authenticated source network wins over any payload claim.
	if info.OriginNetwork != remoteNetwork {
		t.Fatalf("origin network: got %q", info.OriginNetwork)
	}
	if info.LatestReward.Int64() != 230 || info.TotalRewards.Int64() != 230 {
		t.Fatalf("reward mismatch: %+v", info)
	}
}

func TestDuplicateDeliveryDoesNotDoubleSettle(t *testing.T) {
	f := newGatewayFixture(t)
	payload := f.borrowPayload(t)
	msg := Message{SourceNetwork: remoteNetwork, SourceAddress: remoteLinker, Payload: payload}
	if err := f.gateway.Execute(msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.gateway.Execute(msg); !errors.Is(err, lease.ErrLeaseActive) {
		t.Fatalf("duplicate delivery: expected ErrLeaseActive, got %v", err)
	}
	info, _ := f.engine.LendingInfo(fillAddress(0xC0), 1)
	if info.TotalRewards.Int64() != 230 {
		t.Fatalf("duplicate delivery double-settled: %s", info.TotalRewards)
	}
}

func TestExecuteSetOriginal(t *testing.T) {
	f := newGatewayFixture(t)
	payload, err := EncodeCommand(&Command{Kind: CommandSetOriginal, Remote: fillAddress(0xD0)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := f.gateway.Execute(Message{SourceNetwork: remoteNetwork, SourceAddress: remoteLinker, Payload: payload}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	remote, ok := f.engine.Original(remoteNetwork)
	if !ok || remote != fillAddress(0xD0) {
		t.Fatalf("original not recorded: %v %v", remote, ok)
	}
}
