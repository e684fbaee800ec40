package tokens

import (
	"bytes"
	"encoding/hex"
	"strings"

	"golang.org/x/xerrors"
)

// AccountIDLength is the size in bytes of an account identifier.
const AccountIDLength = 32

// AccountID is an opaque 32-byte account identity.
type AccountID [AccountIDLength]byte

// ParseAccountID decodes a hex account id, with or without a 0x prefix.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, xerrors.Errorf("invalid account id %q: %w", s, err)
	}
	if len(raw) != AccountIDLength {
		return id, xerrors.Errorf("invalid account id length: got %d bytes, expected %d", len(raw), AccountIDLength)
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the lowercase hex form of the id.
func (a AccountID) String() string {
	return hex.EncodeToString(a[:])
}

func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// Less orders ids bytewise. Snapshots use it for deterministic output.
func (a AccountID) Less(b AccountID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	id, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// Some returns a pointer to a copy of a, for the optional ends of a Transfer.
func Some(a AccountID) *AccountID {
	return &a
}
