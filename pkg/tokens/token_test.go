package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func account(b byte) AccountID {
	var id AccountID
	for i := range id {
		id[i] = b
	}
	return id
}

var (
	alice = account(0x01)
	bob   = account(0x02)
	carol = account(0x03)
	eve   = account(0x05)
)

func newTestLedger(t *testing.T) (*Ledger, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	l := New(alice, []byte("xDOT"), []byte("DOT"), NewAmount(1_000_000_000), rec)
	return l, rec
}

func requireTransfer(t *testing.T, e Event, from, to *AccountID, value uint64) {
	t.Helper()
	tr, ok := e.(Transfer)
	require.True(t, ok, "expected a Transfer event, got %T", e)
	assert.Equal(t, from, tr.From, "Transfer.from")
	assert.Equal(t, to, tr.To, "Transfer.to")
	assert.True(t, tr.Value.Eq(NewAmount(value)), "Transfer.value = %s", tr.Value)
}

func requireSupplyInvariant(t *testing.T, l *Ledger) {
	t.Helper()
	require.NoError(t, l.CheckSupply())
}

// TestNewLedger validates construction credits the whole supply to the creator.
func TestNewLedger(t *testing.T) {
	l, rec := newTestLedger(t)

	assert.Equal(t, []byte("xDOT"), l.Name())
	assert.Equal(t, []byte("DOT"), l.Symbol())
	assert.Equal(t, alice, l.Creator())
	assert.True(t, l.TotalSupply().Eq(NewAmount(1_000_000_000)))
	assert.True(t, l.BalanceOf(alice).Eq(NewAmount(1_000_000_000)))

	require.Equal(t, 1, rec.Len())
	requireTransfer(t, rec.Events()[0], nil, Some(alice), 1_000_000_000)
	requireSupplyInvariant(t, l)
}

// TestUnknownAccountReadsZero validates absent balances and allowances read as zero.
func TestUnknownAccountReadsZero(t *testing.T) {
	l, _ := newTestLedger(t)

	assert.True(t, l.BalanceOf(bob).IsZero())
	assert.True(t, l.Allowance(alice, bob).IsZero())
}

// TestTransfer validates a direct transfer moves funds and emits one Transfer.
func TestTransfer(t *testing.T) {
	l, rec := newTestLedger(t)

	require.NoError(t, l.Transfer(alice, bob, NewAmount(10)))
	assert.True(t, l.BalanceOf(bob).Eq(NewAmount(10)))
	assert.True(t, l.BalanceOf(alice).Eq(NewAmount(1_000_000_000-10)))

	events := rec.Events()
	require.Len(t, events, 2)
	requireTransfer(t, events[1], Some(alice), Some(bob), 10)
	requireSupplyInvariant(t, l)
}

// TestTransferInsufficientBalance validates a failed transfer changes nothing.
func TestTransferInsufficientBalance(t *testing.T) {
	l, rec := newTestLedger(t)

	err := l.Transfer(bob, carol, NewAmount(1))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, l.BalanceOf(bob).IsZero())
	assert.True(t, l.BalanceOf(carol).IsZero())
	assert.Equal(t, 1, rec.Len())
	requireSupplyInvariant(t, l)
}

// TestTransferToSelf validates moving funds to the same account keeps the balance.
func TestTransferToSelf(t *testing.T) {
	l, rec := newTestLedger(t)

	require.NoError(t, l.Transfer(alice, alice, NewAmount(500)))
	assert.True(t, l.BalanceOf(alice).Eq(NewAmount(1_000_000_000)))
	require.Equal(t, 2, rec.Len())
	requireTransfer(t, rec.Events()[1], Some(alice), Some(alice), 500)
	requireSupplyInvariant(t, l)
}

// TestTransferZeroFromEmptyAccount validates zero-value moves succeed for empty accounts.
func TestTransferZeroFromEmptyAccount(t *testing.T) {
	l, rec := newTestLedger(t)

	require.NoError(t, l.Transfer(bob, carol, NewAmount(0)))
	assert.True(t, l.BalanceOf(carol).IsZero())
	assert.Equal(t, 2, rec.Len())
	assert.Empty(t, l.Snapshot().Balances[1:], "zero balances must not be stored")
}

// TestApproveOverwrites validates repeated approvals replace rather than accumulate.
func TestApproveOverwrites(t *testing.T) {
	l, rec := newTestLedger(t)

	require.NoError(t, l.Approve(alice, bob, NewAmount(5)))
	require.NoError(t, l.Approve(alice, bob, NewAmount(3)))
	assert.True(t, l.Allowance(alice, bob).Eq(NewAmount(3)))

	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, Approval{Owner: alice, Spender: bob, Value: NewAmount(3)}, events[2])
}

// TestApproveWithoutBalance validates approval does not depend on the owner's balance.
func TestApproveWithoutBalance(t *testing.T) {
	l, _ := newTestLedger(t)

	require.NoError(t, l.Approve(carol, bob, NewAmount(1_000)))
	assert.True(t, l.Allowance(carol, bob).Eq(NewAmount(1_000)))
	assert.True(t, l.Allowance(bob, carol).IsZero())
}

// TestTransferFrom validates delegated transfers consume the spender's allowance.
func TestTransferFrom(t *testing.T) {
	l, rec := newTestLedger(t)

	require.ErrorIs(t, l.TransferFrom(bob, alice, eve, NewAmount(10)), ErrInsufficientAllowance)
	require.NoError(t, l.Approve(alice, bob, NewAmount(10)))
	require.Equal(t, 2, rec.Len())

	require.NoError(t, l.TransferFrom(bob, alice, eve, NewAmount(10)))
	assert.True(t, l.BalanceOf(eve).Eq(NewAmount(10)))
	assert.True(t, l.Allowance(alice, bob).IsZero())
	assert.True(t, l.Allowance(alice, eve).IsZero(), "recipient allowance must stay untouched")

	// Only the Transfer is emitted; there is no Approval for the decrement.
	events := rec.Events()
	require.Len(t, events, 3)
	requireTransfer(t, events[2], Some(alice), Some(eve), 10)

	require.ErrorIs(t, l.TransferFrom(bob, alice, eve, NewAmount(10)), ErrInsufficientAllowance)
	requireSupplyInvariant(t, l)
}

// TestTransferFromPartialAllowance validates the remaining allowance after a partial spend.
func TestTransferFromPartialAllowance(t *testing.T) {
	l, _ := newTestLedger(t)

	require.NoError(t, l.Approve(alice, bob, NewAmount(100)))
	require.NoError(t, l.TransferFrom(bob, alice, carol, NewAmount(30)))
	assert.True(t, l.Allowance(alice, bob).Eq(NewAmount(70)))
	assert.True(t, l.BalanceOf(carol).Eq(NewAmount(30)))
}

// TestTransferFromInsufficientBalance validates the allowance survives a failed move.
func TestTransferFromInsufficientBalance(t *testing.T) {
	l, rec := newTestLedger(t)

	require.NoError(t, l.Approve(carol, bob, NewAmount(50)))
	err := l.TransferFrom(bob, carol, eve, NewAmount(50))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, l.Allowance(carol, bob).Eq(NewAmount(50)))
	assert.True(t, l.BalanceOf(eve).IsZero())
	assert.Equal(t, 2, rec.Len())
}

// TestTransferFromWithoutApproval validates a stranger cannot move funds.
func TestTransferFromWithoutApproval(t *testing.T) {
	l, _ := newTestLedger(t)

	err := l.TransferFrom(bob, alice, carol, NewAmount(10))
	require.ErrorIs(t, err, ErrInsufficientAllowance)
	assert.True(t, l.BalanceOf(alice).Eq(NewAmount(1_000_000_000)))
	assert.True(t, l.BalanceOf(carol).IsZero())
}

// TestIssue validates minting by the creator.
func TestIssue(t *testing.T) {
	l, rec := newTestLedger(t)

	require.NoError(t, l.Issue(alice, NewAmount(100)))
	assert.True(t, l.TotalSupply().Eq(NewAmount(1_000_000_100)))
	assert.True(t, l.BalanceOf(alice).Eq(NewAmount(1_000_000_100)))
	requireTransfer(t, rec.Events()[1], nil, Some(alice), 100)
	requireSupplyInvariant(t, l)
}

// TestIssueOnlyForCreator validates other callers cannot mint.
func TestIssueOnlyForCreator(t *testing.T) {
	l, rec := newTestLedger(t)

	require.ErrorIs(t, l.Issue(bob, NewAmount(100)), ErrOnlyForCreator)
	assert.True(t, l.TotalSupply().Eq(NewAmount(1_000_000_000)))
	assert.True(t, l.BalanceOf(bob).IsZero())
	assert.Equal(t, 1, rec.Len())
}

// TestIssueOverflow validates minting past the Amount range is rejected whole.
func TestIssueOverflow(t *testing.T) {
	l, rec := newTestLedger(t)

	require.ErrorIs(t, l.Issue(alice, MaxAmount()), ErrArithmeticOverflow)
	assert.True(t, l.TotalSupply().Eq(NewAmount(1_000_000_000)))
	assert.True(t, l.BalanceOf(alice).Eq(NewAmount(1_000_000_000)))
	assert.Equal(t, 1, rec.Len())
	requireSupplyInvariant(t, l)
}

// TestBurn validates burning reduces both the holder's balance and the supply.
func TestBurn(t *testing.T) {
	l, rec := newTestLedger(t)
	require.NoError(t, l.Transfer(alice, bob, NewAmount(40)))

	require.NoError(t, l.Burn(bob, NewAmount(15)))
	assert.True(t, l.BalanceOf(bob).Eq(NewAmount(25)))
	assert.True(t, l.TotalSupply().Eq(NewAmount(1_000_000_000-15)))
	requireTransfer(t, rec.Events()[2], Some(bob), nil, 15)
	requireSupplyInvariant(t, l)
}

// TestBurnInsufficientBalance validates burning more than held fails without side effects.
func TestBurnInsufficientBalance(t *testing.T) {
	l, rec := newTestLedger(t)

	require.ErrorIs(t, l.Burn(bob, NewAmount(1)), ErrInsufficientBalance)
	assert.True(t, l.TotalSupply().Eq(NewAmount(1_000_000_000)))
	assert.Equal(t, 1, rec.Len())
}

// TestBurnEverything validates the supply can reach zero and the entry disappears.
func TestBurnEverything(t *testing.T) {
	l, _ := newTestLedger(t)

	require.NoError(t, l.Burn(alice, NewAmount(1_000_000_000)))
	assert.True(t, l.TotalSupply().IsZero())
	assert.Empty(t, l.Snapshot().Balances)
	requireSupplyInvariant(t, l)
}

// TestCreditOverflowRejected validates a credit that would overflow leaves both sides intact.
func TestCreditOverflowRejected(t *testing.T) {
	max := MaxAmount()
	l := New(alice, []byte("big"), []byte("BIG"), max, nil)
	require.NoError(t, l.Burn(alice, NewAmount(1)))
	require.NoError(t, l.Transfer(alice, bob, NewAmount(1)))

	// A mint without the matching supply check is the only path to a credit
	// overflow, so exercise the primitive directly.
	err := l.transferFromTo(nil, Some(alice), NewAmount(3))
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	assert.True(t, l.BalanceOf(bob).Eq(NewAmount(1)))
}

// TestSupplyInvariantUnderSequence validates the invariant across a mix of operations.
func TestSupplyInvariantUnderSequence(t *testing.T) {
	l, _ := newTestLedger(t)

	steps := []func() error{
		func() error { return l.Transfer(alice, bob, NewAmount(1_000)) },
		func() error { return l.Approve(bob, carol, NewAmount(600)) },
		func() error { return l.TransferFrom(carol, bob, eve, NewAmount(400)) },
		func() error { return l.TransferFrom(carol, bob, eve, NewAmount(400)) },
		func() error { return l.Burn(eve, NewAmount(100)) },
		func() error { return l.Issue(alice, NewAmount(77)) },
		func() error { return l.Issue(bob, NewAmount(77)) },
		func() error { return l.Burn(carol, NewAmount(1)) },
		func() error { return l.Transfer(eve, alice, NewAmount(300)) },
	}
	for _, step := range steps {
		_ = step()
		requireSupplyInvariant(t, l)
	}

	assert.True(t, l.BalanceOf(eve).IsZero())
	assert.True(t, l.Allowance(bob, carol).Eq(NewAmount(200)))
	assert.True(t, l.TotalSupply().Eq(NewAmount(1_000_000_000-100+77)))
}
