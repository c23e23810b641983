package lease

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Listing holds the owner-declared lease terms for a single escrowed asset
// together with the mutable lease state for the current (or most recent)
// segment. A listing exists iff Owner is set, which in turn holds iff the
// asset is in escrow custody.
type Listing struct {
	Collection [20]byte
	AssetID    uint64

	Owner    [20]byte
	Price    *big.Int
	MinTime  int64
	MaxTime  int64
	Deadline int64

	Borrower      [20]byte
	LatestReward  *big.Int
	TotalRewards  *big.Int
	OriginNetwork string
	Expires       int64
	StartedAt     int64
}

// ListingKey derives the storage key for a (collection, asset id) pair.
func ListingKey(collection [20]byte, assetID uint64) [32]byte {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], assetID)
	return ethcrypto.Keccak256Hash(collection[:], id[:])
}

// Key returns the storage key of the listing.
func (l *Listing) Key() [32]byte {
	return ListingKey(l.Collection, l.AssetID)
}

// Active reports whether a lease segment is currently running.
func (l *Listing) Active(now int64) bool {
	if l == nil {
		return false
	}
	return l.Borrower != ([20]byte{}) && now < l.Expires
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	if l.LatestReward != nil {
		clone.LatestReward = new(big.Int).Set(l.LatestReward)
	} else {
		clone.LatestReward = big.NewInt(0)
	}
	if l.TotalRewards != nil {
		clone.TotalRewards = new(big.Int).Set(l.TotalRewards)
	} else {
		clone.TotalRewards = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates and normalises a listing record, returning a
// cloned instance with non-nil amounts and a trimmed origin network. The
// function does not mutate the original value.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("nil listing")
	}
	clone := l.Clone()
	if clone.Price.Sign() < 0 {
		return nil, fmt.Errorf("listing price must be non-negative")
	}
	if clone.LatestReward.Sign() < 0 {
		return nil, fmt.Errorf("listing reward must be non-negative")
	}
	if clone.TotalRewards.Sign() < 0 {
		return nil, fmt.Errorf("listing total rewards must be non-negative")
	}
	if clone.MinTime < 0 || clone.MaxTime < 0 || clone.Deadline < 0 {
		return nil, fmt.Errorf("listing terms must be non-negative")
	}
	if clone.MaxTime < clone.MinTime {
		return nil, fmt.Errorf("listing max time below min time")
	}
	clone.OriginNetwork = strings.TrimSpace(clone.OriginNetwork)
	return clone, nil
}
