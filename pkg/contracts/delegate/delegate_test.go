package delegate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/tokenledger/pkg/tokens"
)

// TestDelegateCall validates the proxy reports balances of the referenced ledger.
func TestDelegateCall(t *testing.T) {
	owner := tokens.AccountID{0x01}
	other := tokens.AccountID{0x02}
	ledger := tokens.New(owner, []byte("xDOT"), []byte("DOT"), tokens.NewAmount(1_000), nil)
	d := New(ledger)

	assert.True(t, d.Call(owner).Eq(tokens.NewAmount(1_000)))
	assert.True(t, d.Call(other).IsZero())

	require.NoError(t, ledger.Transfer(owner, other, tokens.NewAmount(250)))
	assert.True(t, d.Call(other).Eq(tokens.NewAmount(250)))
}
