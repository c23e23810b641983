package relay

import (
	"errors"
	"strings"
	"sync"
)

var (
	// ErrNotAdmin rejects linker mutations from non-administrative callers.
	ErrNotAdmin = errors.New("relay: caller is not the administrator")
	// ErrUnknownNetwork is returned when no linker is registered for a
	// network identifier.
	ErrUnknownNetwork = errors.New("relay: unknown network")
)

// LinkerStore persists linker entries across restarts.
type LinkerStore interface {
	LinkerPut(network, address string) error
	LinkerAll() (map[string]string, error)
}

// Registry maps remote network identifiers to the single trusted counterpart
// contract address on that network. Replacing an entry immediately invalidates
// trust in the previous address.
type Registry struct {
	admin   [20]byte
	persist LinkerStore

	mu      sync.RWMutex
	linkers map[string]string
}

// NewRegistry creates a linker registry administered by the given identity.
// The persistence backend may be nil for ephemeral registries.
func NewRegistry(admin [20]byte, persist LinkerStore) *Registry {
	return &Registry{
		admin:   admin,
		persist: persist,
		linkers: make(map[string]string),
	}
}

// Hydrate loads persisted linker entries into the in-memory table.
func (r *Registry) Hydrate() error {
	if r.persist == nil {
		return nil
	}
	entries, err := r.persist.LinkerAll()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for network, address := range entries {
		r.linkers[normalizeNetwork(network)] = strings.TrimSpace(address)
	}
	return nil
}

// AddLinker registers the trusted counterpart address for a remote network.
// Adding over an existing entry replaces it; AddLinker and ModifyLinker share
// replace semantics.
func (r *Registry) AddLinker(caller [20]byte, network, address string) error {
	if caller != r.admin {
		return ErrNotAdmin
	}
	name := normalizeNetwork(network)
	trimmed := strings.TrimSpace(address)
	if name == "" || trimmed == "" {
		return errors.New("relay: network and address required")
	}
	if r.persist != nil {
		if err := r.persist.LinkerPut(name, trimmed); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.linkers[name] = trimmed
	r.mu.Unlock()
	return nil
}

// ModifyLinker replaces the counterpart address for an already registered
// network.
func (r *Registry) ModifyLinker(caller [20]byte, network, address string) error {
	if caller != r.admin {
		return ErrNotAdmin
	}
	name := normalizeNetwork(network)
	r.mu.RLock()
	_, ok := r.linkers[name]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownNetwork
	}
	return r.AddLinker(caller, network, address)
}

// Resolve returns the trusted counterpart address for a network.
func (r *Registry) Resolve(network string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	address, ok := r.linkers[normalizeNetwork(network)]
	return address, ok
}

// Networks lists the registered network identifiers.
func (r *Registry) Networks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.linkers))
	for name := range r.linkers {
		out = append(out, name)
	}
	return out
}

func normalizeNetwork(network string) string {
	return strings.TrimSpace(network)
}
