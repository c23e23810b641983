package lease

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"leasenet/core/types"
	"leasenet/storage"
)

var (
	listingPrefix  = []byte("lease/listing/")
	wrappedPrefix  = []byte("lease/wrapped/")
	originalPrefix = []byte("lease/original/")
	accountPrefix  = []byte("lease/account/")
	linkerPrefix = []byte("relay/linker/")

	// linkerIndexKey lives outside the linkerPrefix keyspace so a network
	// named "index" cannot shadow it.
	linkerIndexKey = []byte("relay/linker-index")
)

// Store persists the lease ledger in a key-value database using RLP encoding.
// It implements the engine's state interface and the relay registry's linker
// persistence.
type Store struct {
	db storage.Database
}

// NewStore wraps a database with the lease state schema.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// storedListing mirrors Listing with RLP-friendly unsigned timestamps.
type storedListing struct {
	Collection    [20]byte
	AssetID       uint64
	Owner         [20]byte
	Price         *big.Int
	MinTime       uint64
	MaxTime       uint64
	Deadline      uint64
	Borrower      [20]byte
	LatestReward  *big.Int
	TotalRewards  *big.Int
	OriginNetwork string
	Expires       uint64
	StartedAt     uint64
}

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

func listingDBKey(key [32]byte) []byte {
	return append(append([]byte(nil), listingPrefix...), key[:]...)
}

func addrKey(prefix []byte, addr [20]byte) []byte {
	return append(append([]byte(nil), prefix...), addr[:]...)
}

func stringKey(prefix []byte, name string) []byte {
	return append(append([]byte(nil), prefix...), []byte(name)...)
}

// ListingPut sanitizes and persists a listing record.
func (s *Store) ListingPut(l *Listing) error {
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return err
	}
	rec := storedListing{
		Collection:    sanitized.Collection,
		AssetID:       sanitized.AssetID,
		Owner:         sanitized.Owner,
		Price:         sanitized.Price,
		MinTime:       uint64(sanitized.MinTime),
		MaxTime:       uint64(sanitized.MaxTime),
		Deadline:      uint64(sanitized.Deadline),
		Borrower:      sanitized.Borrower,
		LatestReward:  sanitized.LatestReward,
		TotalRewards:  sanitized.TotalRewards,
		OriginNetwork: sanitized.OriginNetwork,
		Expires:       uint64(sanitized.Expires),
		StartedAt:     uint64(sanitized.StartedAt),
	}
	encoded, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	return s.db.Put(listingDBKey(sanitized.Key()), encoded)
}

// ListingGet loads a listing record by storage key.
func (s *Store) ListingGet(key [32]byte) (*Listing, bool) {
	raw, err := s.db.Get(listingDBKey(key))
	if err != nil {
		return nil, false
	}
	var rec storedListing
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, false
	}
	return &Listing{
		Collection:    rec.Collection,
		AssetID:       rec.AssetID,
		Owner:         rec.Owner,
		Price:         rec.Price,
		MinTime:       int64(rec.MinTime),
		MaxTime:       int64(rec.MaxTime),
		Deadline:      int64(rec.Deadline),
		Borrower:      rec.Borrower,
		LatestReward:  rec.LatestReward,
		TotalRewards:  rec.TotalRewards,
		OriginNetwork: rec.OriginNetwork,
		Expires:       int64(rec.Expires),
		StartedAt:     int64(rec.StartedAt),
	}, true
}

// ListingDelete removes a listing record in full.
func (s *Store) ListingDelete(key [32]byte) error {
	return s.db.Delete(listingDBKey(key))
}

// WrappedPut records the wrapped usage-rights collection for an original
// collection.
func (s *Store) WrappedPut(original, wrapped [20]byte) error {
	return s.db.Put(addrKey(wrappedPrefix, original), wrapped[:])
}

// WrappedGet resolves the wrapped collection for an original collection.
func (s *Store) WrappedGet(collection [20]byte) ([20]byte, bool) {
	raw, err := s.db.Get(addrKey(wrappedPrefix, collection))
	if err != nil || len(raw) != 20 {
		return [20]byte{}, false
	}
	var out [20]byte
	copy(out[:], raw)
	return out, true
}

// OriginalPut records the remote-network address of an asset escrowed on
// another ledger.
func (s *Store) OriginalPut(network string, remote [20]byte) error {
	trimmed := strings.TrimSpace(network)
	if trimmed == "" {
		return fmt.Errorf("empty network identifier")
	}
	return s.db.Put(stringKey(originalPrefix, trimmed), remote[:])
}

// OriginalGet resolves a remote asset address recorded via OriginalPut.
func (s *Store) OriginalGet(network string) ([20]byte, bool) {
	raw, err := s.db.Get(stringKey(originalPrefix, strings.TrimSpace(network)))
	if err != nil || len(raw) != 20 {
		return [20]byte{}, false
	}
	var out [20]byte
	copy(out[:], raw)
	return out, true
}

// GetAccount loads a settlement-currency account, returning a zeroed account
// for unknown addresses.
func (s *Store) GetAccount(addr []byte) (*types.Account, error) {
	raw, err := s.db.Get(append(append([]byte(nil), accountPrefix...), addr...))
	if err == storage.ErrNotFound {
		return types.EnsureAccount(nil), nil
	}
	if err != nil {
		return nil, err
	}
	var rec storedAccount
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return types.EnsureAccount(&types.Account{Nonce: rec.Nonce, Balance: rec.Balance}), nil
}

// PutAccount persists a settlement-currency account.
func (s *Store) PutAccount(addr []byte, account *types.Account) error {
	account = types.EnsureAccount(account)
	if account.Balance.Sign() < 0 {
		return fmt.Errorf("negative account balance")
	}
	encoded, err := rlp.EncodeToBytes(&storedAccount{Nonce: account.Nonce, Balance: account.Balance})
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	return s.db.Put(append(append([]byte(nil), accountPrefix...), addr...), encoded)
}

// LinkerPut persists a trusted counterpart address for a remote network and
// maintains the network index used to rehydrate the relay registry.
func (s *Store) LinkerPut(network, address string) error {
	trimmed := strings.TrimSpace(network)
	if trimmed == "" {
		return fmt.Errorf("empty network identifier")
	}
	known, err := s.db.Has(stringKey(linkerPrefix, trimmed))
	if err != nil {
		return err
	}
	if !known {
		index, err := s.linkerIndex()
		if err != nil {
			return err
		}
		index = append(index, trimmed)
		encoded, err := rlp.EncodeToBytes(index)
		if err != nil {
			return fmt.Errorf("encode linker index: %w", err)
		}
		if err := s.db.Put(linkerIndexKey, encoded); err != nil {
			return err
		}
	}
	return s.db.Put(stringKey(linkerPrefix, trimmed), []byte(strings.TrimSpace(address)))
}

// LinkerAll returns every persisted linker entry keyed by network.
func (s *Store) LinkerAll() (map[string]string, error) {
	index, err := s.linkerIndex()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(index))
	for _, name := range index {
		raw, err := s.db.Get(stringKey(linkerPrefix, name))
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = string(raw)
	}
	return out, nil
}

func (s *Store) linkerIndex() ([]string, error) {
	raw, err := s.db.Get(linkerIndexKey)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var index []string
	if err := rlp.DecodeBytes(raw, &index); err != nil {
		return nil, fmt.Errorf("decode linker index: %w", err)
	}
	return index, nil
}
