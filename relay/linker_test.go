package relay

import (
	"bytes"
	"errors"
	"testing"
)

type memLinkerStore struct {
	entries map[string]string
}

func newMemLinkerStore() *memLinkerStore {
	return &memLinkerStore{entries: make(map[string]string)}
}

func (s *memLinkerStore) LinkerPut(network, address string) error {
	s.entries[network] = address
	return nil
}

func (s *memLinkerStore) LinkerAll() (map[string]string, error) {
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out, nil
}

func testAdmin() [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{0x01}, 20))
	return addr
}

func TestAddLinkerRequiresAdmin(t *testing.T) {
	registry := NewRegistry(testAdmin(), nil)
	var stranger [20]byte
	stranger[0] = 0xFF
	if err := registry.AddLinker(stranger, "chain-a", "0xabc"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
}

func TestAddAndResolve(t *testing.T) {
	registry := NewRegistry(testAdmin(), nil)
	if err := registry.AddLinker(testAdmin(), " chain-a ", " 0xabc "); err != nil {
		t.Fatalf("add: %v", err)
	}
	address, ok := registry.Resolve("chain-a")
	if !ok || address != "0xabc" {
		t.Fatalf("resolve: %q %v", address, ok)
	}
	if _, ok := registry.Resolve("chain-b"); ok {
		t.Fatal("unexpected entry for unregistered network")
	}
}

func TestModifyLinkerReplaces(t *testing.T) {
	registry := NewRegistry(testAdmin(), nil)
	if err := registry.ModifyLinker(testAdmin(), "chain-a", "0xabc"); !errors.Is(err, ErrUnknownNetwork) {
		t.Fatalf("expected ErrUnknownNetwork, got %v", err)
	}
	if err := registry.AddLinker(testAdmin(), "chain-a", "0xabc"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := registry.ModifyLinker(testAdmin(), "chain-a", "0xdef"); err != nil {
		t.Fatalf("modify: %v", err)
	}
	address, _ := registry.Resolve("chain-a")
	if address != "0xdef" {
		t.Fatalf("replacement not applied: %q", address)
	}
}

func TestRegistryPersistence(t *testing.T) {
	store := newMemLinkerStore()
	registry := NewRegistry(testAdmin(), store)
	if err := registry.AddLinker(testAdmin(), "chain-a", "0xabc"); err != nil {
		t.Fatalf("add: %v", err)
	}

	rehydrated := NewRegistry(testAdmin(), store)
	if err := rehydrated.Hydrate(); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	address, ok := rehydrated.Resolve("chain-a")
	if !ok || address != "0xabc" {
		t.Fatalf("persisted entry missing: %q %v", address, ok)
	}
}
