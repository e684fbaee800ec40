package tokens

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAmountArithmetic validates overflow and underflow are reported, not wrapped.
func TestAmountArithmetic(t *testing.T) {
	sum, err := NewAmount(2).Add(NewAmount(3))
	require.NoError(t, err)
	assert.Equal(t, "5", sum.String())

	_, err = MaxAmount().Add(NewAmount(1))
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = NewAmount(1).Sub(NewAmount(2))
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	diff, err := NewAmount(10).Sub(NewAmount(10))
	require.NoError(t, err)
	assert.True(t, diff.IsZero())
}

// TestAmountBeyond128Bits validates amounts wider than 128 bits round-trip.
func TestAmountBeyond128Bits(t *testing.T) {
	const big = "340282366920938463463374607431768211457" // 2^128 + 1
	a, err := ParseAmount(big)
	require.NoError(t, err)
	assert.Equal(t, big, a.String())

	b := a.Bytes()
	back, err := AmountFromBytes(b[:])
	require.NoError(t, err)
	assert.True(t, a.Eq(back))
}

// TestAmountJSON validates the decimal-string wire form and bare-number input.
func TestAmountJSON(t *testing.T) {
	raw, err := json.Marshal(NewAmount(1_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, `"1000000000"`, string(raw))

	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"42"`), &a))
	assert.True(t, a.Eq(NewAmount(42)))
	require.NoError(t, json.Unmarshal([]byte(`7`), &a))
	assert.True(t, a.Eq(NewAmount(7)))

	require.Error(t, json.Unmarshal([]byte(`"-1"`), &a))
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &a))
}

// TestParseAccountID validates hex parsing with and without prefix.
func TestParseAccountID(t *testing.T) {
	id := account(0xab)
	parsed, err := ParseAccountID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	parsed, err = ParseAccountID("0x" + id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseAccountID("abcd")
	require.Error(t, err)
	_, err = ParseAccountID("zz")
	require.Error(t, err)
}
