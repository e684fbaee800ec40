package tokens

import (
	"bytes"
	"encoding/json"

	"github.com/holiman/uint256"
	"golang.org/x/xerrors"
)

// Amount is an unsigned 256-bit token quantity. Arithmetic never wraps:
// Add and Sub return ErrArithmeticOverflow instead.
type Amount struct {
	v uint256.Int
}

func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount reads a base-10 amount.
func ParseAmount(s string) (Amount, error) {
	x, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, xerrors.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{v: *x}, nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MaxAmount is the largest representable amount.
func MaxAmount() Amount {
	var a Amount
	a.v.SetAllOne()
	return a
}

func (a Amount) Add(b Amount) (Amount, error) {
	var z Amount
	if _, overflow := z.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrArithmeticOverflow
	}
	return z, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var z Amount
	if _, underflow := z.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrArithmeticOverflow
	}
	return z, nil
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) Lt(b Amount) bool {
	return a.v.Lt(&b.v)
}

func (a Amount) Eq(b Amount) bool {
	return a.v.Eq(&b.v)
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

func (a Amount) String() string {
	return a.v.Dec()
}

// Bytes returns the 32-byte big-endian encoding.
func (a Amount) Bytes() [32]byte {
	return a.v.Bytes32()
}

func AmountFromBytes(b []byte) (Amount, error) {
	if len(b) > 32 {
		return Amount{}, xerrors.Errorf("amount encoding too long: %d bytes", len(b))
	}
	var a Amount
	a.v.SetBytes(b)
	return a, nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) GobEncode() ([]byte, error) {
	b := a.Bytes()
	return b[:], nil
}

func (a *Amount) GobDecode(data []byte) error {
	parsed, err := AmountFromBytes(data)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
