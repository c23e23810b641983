package relay

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// CommandKind discriminates the operations a relay payload may carry.
type CommandKind uint8

const (
	// CommandBorrow starts a lease on behalf of a remote borrower.
	CommandBorrow CommandKind = iota + 1
	// CommandSetOriginal records the home-network address of an asset whose
	// wrapped side is hosted here.
	CommandSetOriginal
)

// ErrBadPayload is returned when a relay payload cannot be decoded into a
// command.
var ErrBadPayload = errors.New("relay: malformed payload")

// Command is the decoded form of a relay payload. Fields not applicable to the
// command kind are left at their zero values.
type Command struct {
	Kind       CommandKind
	Collection [20]byte
	AssetID    uint64
	Borrower   [20]byte
	Expires    uint64
	Payment    *big.Int
	Network    string
	Remote     [20]byte
}

// Valid reports whether the kind is within the supported range.
func (k CommandKind) Valid() bool {
	switch k {
	case CommandBorrow, CommandSetOriginal:
		return true
	default:
		return false
	}
}

// EncodeCommand serialises a command into the canonical relay payload.
func EncodeCommand(cmd *Command) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("relay: nil command")
	}
	if !cmd.Kind.Valid() {
		return nil, fmt.Errorf("relay: invalid command kind %d", cmd.Kind)
	}
	encode := *cmd
	if encode.Payment == nil {
		encode.Payment = big.NewInt(0)
	}
	return rlp.EncodeToBytes(&encode)
}

// DecodeCommand parses a relay payload. Any decoding failure, including an
// unsupported kind, is reported as ErrBadPayload.
func DecodeCommand(payload []byte) (*Command, error) {
	var cmd Command
	if err := rlp.DecodeBytes(payload, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if !cmd.Kind.Valid() {
		return nil, fmt.Errorf("%w: unsupported kind %d", ErrBadPayload, cmd.Kind)
	}
	return &cmd, nil
}
