package loan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/tokenledger/pkg/tokens"
)

var (
	owner    = tokens.AccountID{0x01}
	stranger = tokens.AccountID{0x02}
	contract = tokens.AccountID{0xc0}
	base     = tokens.AccountID{0xb0}
)

func setup(t *testing.T) (*tokens.Ledger, *Loan) {
	t.Helper()
	ledger := tokens.New(owner, []byte("xDOT"), []byte("DOT"), tokens.NewAmount(1_000), nil)
	return ledger, New(owner, contract, base, ledger)
}

// TestRechargeForBorrowing validates tokens move into the contract's custody.
func TestRechargeForBorrowing(t *testing.T) {
	ledger, l := setup(t)
	require.NoError(t, ledger.Approve(owner, contract, tokens.NewAmount(300)))

	require.NoError(t, l.RechargeForBorrowing(owner, tokens.NewAmount(200)))
	assert.True(t, l.BorrowingsBalance().Eq(tokens.NewAmount(200)))
	assert.True(t, l.TotalBorrowings().IsZero())
	assert.True(t, ledger.BalanceOf(contract).Eq(tokens.NewAmount(200)))
	assert.True(t, ledger.BalanceOf(owner).Eq(tokens.NewAmount(800)))
	assert.True(t, ledger.Allowance(owner, contract).Eq(tokens.NewAmount(100)))
}

// TestRechargeOnlyForOwner validates strangers cannot recharge.
func TestRechargeOnlyForOwner(t *testing.T) {
	ledger, l := setup(t)
	require.NoError(t, ledger.Approve(stranger, contract, tokens.NewAmount(300)))

	require.ErrorIs(t, l.RechargeForBorrowing(stranger, tokens.NewAmount(1)), ErrOnlyForOwner)
	assert.True(t, l.BorrowingsBalance().IsZero())
}

// TestRechargePropagatesLedgerErrors validates a rejected pull leaves the counter alone.
func TestRechargePropagatesLedgerErrors(t *testing.T) {
	ledger, l := setup(t)

	err := l.RechargeForBorrowing(owner, tokens.NewAmount(10))
	require.ErrorIs(t, err, tokens.ErrInsufficientAllowance)
	assert.True(t, l.BorrowingsBalance().IsZero())

	require.NoError(t, ledger.Approve(owner, contract, tokens.NewAmount(5_000)))
	err = l.RechargeForBorrowing(owner, tokens.NewAmount(5_000))
	require.ErrorIs(t, err, tokens.ErrInsufficientBalance)
	assert.True(t, l.BorrowingsBalance().IsZero())
	assert.True(t, ledger.Allowance(owner, contract).Eq(tokens.NewAmount(5_000)))
}

// TestCollateralRatios validates the owner-only ratio table.
func TestCollateralRatios(t *testing.T) {
	_, l := setup(t)

	require.ErrorIs(t, l.SetMinCollateralRatio(stranger, base, 150), ErrOnlyForOwner)
	require.NoError(t, l.SetMinCollateralRatio(owner, base, 150))
	assert.Equal(t, uint32(150), l.MinCollateralRatio(base))
	require.NoError(t, l.SetMinCollateralRatio(owner, base, 0))
	assert.Zero(t, l.MinCollateralRatio(base))
	assert.True(t, l.PledgeOf(owner, base).IsZero())
	assert.True(t, l.BorrowingOf(owner).IsZero())
}

// TestStateRestore validates the persisted state rebuilds an equal contract.
func TestStateRestore(t *testing.T) {
	ledger, l := setup(t)
	require.NoError(t, ledger.Approve(owner, contract, tokens.NewAmount(50)))
	require.NoError(t, l.RechargeForBorrowing(owner, tokens.NewAmount(50)))
	require.NoError(t, l.SetMinCollateralRatio(owner, base, 120))

	restored := Restore(l.State(), ledger)
	assert.Equal(t, l.State(), restored.State())
	assert.Equal(t, owner, restored.Owner())
	assert.Equal(t, contract, restored.Address())
	assert.Equal(t, base, restored.BaseToken())
}
