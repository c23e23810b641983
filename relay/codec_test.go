package relay

import (
	"errors"
	"math/big"
	"testing"
)

func TestCommandRoundTrip(t *testing.T) {
	var collection, borrower [20]byte
	collection[0] = 0xC0
	borrower[0] = 0x03
	cmd := &Command{
		Kind:       CommandBorrow,
		Collection: collection,
		AssetID:    7,
		Borrower:   borrower,
		Expires:    1_700_086_400,
		Payment:    big.NewInt(230),
	}
	payload, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeCommand(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != CommandBorrow || decoded.Collection != collection || decoded.AssetID != 7 {
		t.Fatalf("decoded mismatch: %+v", decoded)
	}
	if decoded.Borrower != borrower || decoded.Expires != 1_700_086_400 || decoded.Payment.Int64() != 230 {
		t.Fatalf("decoded mismatch: %+v", decoded)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeCommand([]byte{0x01, 0x02, 0x03}); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload, got %v", err)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	payload, err := EncodeCommand(&Command{Kind: CommandSetOriginal})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Re-encode with a kind outside the supported range.
	bad := &Command{Kind: CommandKind(99)}
	if _, err := EncodeCommand(bad); err == nil {
		t.Fatal("encode must reject unsupported kinds")
	}
	if _, err := DecodeCommand(payload); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}

func TestEncodeNormalizesNilPayment(t *testing.T) {
	payload, err := EncodeCommand(&Command{Kind: CommandBorrow})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeCommand(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Payment == nil || decoded.Payment.Sign() != 0 {
		t.Fatalf("payment not normalised: %v", decoded.Payment)
	}
}
