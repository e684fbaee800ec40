package randkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/tokenledger/pkg/tokens"
)

// TestDefaultIsZero validates the default contract starts from zero bytes.
func TestDefaultIsZero(t *testing.T) {
	r := Default(CryptoSource{}, nil)
	assert.Equal(t, [32]byte{}, r.Get())
}

// TestUpdate validates a fetched value is stored and announced.
func TestUpdate(t *testing.T) {
	want := [32]byte{0xde, 0xad, 0xbe, 0xef}
	rec := &tokens.Recorder{}
	r := Default(SourceFunc(func() ([32]byte, error) { return want, nil }), rec)

	require.NoError(t, r.Update())
	assert.Equal(t, want, r.Get())
	require.Equal(t, 1, rec.Len())
	assert.Equal(t, RandomUpdated{New: want}, rec.Events()[0])
}

// TestUpdateSourceUnavailable validates a failing source leaves the value alone.
func TestUpdateSourceUnavailable(t *testing.T) {
	initial := [32]byte{0x07}
	rec := &tokens.Recorder{}
	r := New(initial, SourceFunc(func() ([32]byte, error) { return [32]byte{}, FromStatusCode(1) }), rec)

	require.ErrorIs(t, r.Update(), ErrFailGetRandomSource)
	assert.Equal(t, initial, r.Get())
	assert.Zero(t, rec.Len())
}

// TestFromStatusCode validates the status code mapping.
func TestFromStatusCode(t *testing.T) {
	require.NoError(t, FromStatusCode(0))
	require.ErrorIs(t, FromStatusCode(1), ErrFailGetRandomSource)
	err := FromStatusCode(9)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFailGetRandomSource)
}

// TestCryptoSource validates the crypto/rand source produces distinct values.
func TestCryptoSource(t *testing.T) {
	a, err := CryptoSource{}.FetchRandom()
	require.NoError(t, err)
	b, err := CryptoSource{}.FetchRandom()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
