package relay

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AddressBook is the on-disk seed list of linker contracts, one entry per
// remote network. Entries loaded from the book are applied before any
// persisted linkers so operator edits win on restart.
type AddressBook struct {
	Linkers []AddressBookEntry `yaml:"linkers"`
}

// AddressBookEntry names one remote network and its linker contract address.
type AddressBookEntry struct {
	Network string `yaml:"network"`
	Address string `yaml:"address"`
}

// LoadAddressBook parses the YAML linker book at path. A missing path returns
// an empty book so a fresh deployment starts without seeds.
func LoadAddressBook(path string) (*AddressBook, error) {
	if strings.TrimSpace(path) == "" {
		return &AddressBook{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &AddressBook{}, nil
		}
		return nil, fmt.Errorf("read linker book: %w", err)
	}
	book := &AddressBook{}
	if err := yaml.Unmarshal(raw, book); err != nil {
		return nil, fmt.Errorf("parse linker book: %w", err)
	}
	seen := make(map[string]struct{}, len(book.Linkers))
	for _, entry := range book.Linkers {
		network := normalizeNetwork(entry.Network)
		if network == "" {
			return nil, fmt.Errorf("linker book entry with empty network")
		}
		if strings.TrimSpace(entry.Address) == "" {
			return nil, fmt.Errorf("linker book entry %q with empty address", entry.Network)
		}
		if _, dup := seen[network]; dup {
			return nil, fmt.Errorf("linker book names network %q twice", entry.Network)
		}
		seen[network] = struct{}{}
	}
	return book, nil
}

// Seed registers every book entry through the registry using the admin
// identity. Existing registrations for the same network are replaced.
func (b *AddressBook) Seed(registry *Registry, admin [20]byte) error {
	if b == nil || registry == nil {
		return nil
	}
	entries := make([]AddressBookEntry, len(b.Linkers))
	copy(entries, b.Linkers)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Network < entries[j].Network })
	for _, entry := range entries {
		if err := registry.AddLinker(admin, entry.Network, entry.Address); err != nil {
			return fmt.Errorf("seed linker %q: %w", entry.Network, err)
		}
	}
	return nil
}
