// Package chain runs the token ledger and its client contracts behind one
// lock, journals their notifications and keeps a hash-chained receipt of
// every successful call in a BoltDB store.
package chain

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"example.com/tokenledger/pkg/contracts/delegate"
	"example.com/tokenledger/pkg/contracts/loan"
	"example.com/tokenledger/pkg/contracts/randkey"
	"example.com/tokenledger/pkg/logger"
	"example.com/tokenledger/pkg/tokens"
)

const (
	MethodNew                   = "new"
	MethodTransfer              = "transfer"
	MethodApprove               = "approve"
	MethodTransferFrom          = "transfer_from"
	MethodIssue                 = "issue"
	MethodBurn                  = "burn"
	MethodRechargeForBorrowing  = "recharge_for_borrowing"
	MethodSetMinCollateralRatio = "set_min_collateral_ratio"
	MethodUpdateRandom          = "update_random"
)

// Genesis describes the ledger created when the store is empty.
type Genesis struct {
	Creator     tokens.AccountID
	Name        []byte
	Symbol      []byte
	TotalSupply tokens.Amount
	// LoanOwner owns the loan contract. Zero means the creator.
	LoanOwner tokens.AccountID
}

// TokenInfo is the read-only view of the ledger metadata.
type TokenInfo struct {
	Address     tokens.AccountID `json:"address"`
	Creator     tokens.AccountID `json:"creator"`
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	TotalSupply tokens.Amount    `json:"total_supply"`
}

// Subscriber receives the notifications of one committed call, in order.
type Subscriber func([]Notification)

type Host struct {
	mu    sync.Mutex
	store *Store
	log   *logger.Logger
	now   func() time.Time

	source   randkey.Source
	pending  *tokens.Recorder
	ledger   *tokens.Ledger
	delegate *delegate.Delegate
	loan     *loan.Loan
	random   *randkey.Randkey
	tip      *Receipt
	lastSeq  uint64

	// outbox holds committed notifications in commit order until a
	// delivering goroutine hands them to the subscribers
	outMu      sync.Mutex
	outbox     [][]Notification
	delivering bool

	subMu       sync.Mutex
	subscribers []Subscriber
}

type Option func(*Host)

// WithClock overrides the receipt timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(h *Host) { h.log = l }
}

// Open restores the contracts from store, or deploys them from genesis
// when the store is empty.
func Open(store *Store, genesis Genesis, source randkey.Source, opts ...Option) (*Host, error) {
	h := &Host{
		store:   store,
		log:     logger.Nop(),
		now:     time.Now,
		source:  source,
		pending: &tokens.Recorder{},
	}
	for _, opt := range opts {
		opt(h)
	}

	err := h.load()
	if errors.Is(err, ErrNoSnapshot) {
		if err := h.deploy(genesis); err != nil {
			return nil, err
		}
		return h, nil
	}
	if err != nil {
		return nil, err
	}
	h.log.Info("restored ledger", "height", h.tip.Height, "last_seq", h.lastSeq, "symbol", string(h.ledger.Symbol()))
	return h, nil
}

func (h *Host) deploy(g Genesis) error {
	owner := g.LoanOwner
	if owner.IsZero() {
		owner = g.Creator
	}

	h.ledger = tokens.New(g.Creator, g.Name, g.Symbol, g.TotalSupply, h.pending)
	h.delegate = delegate.New(h.ledger)
	h.loan = loan.New(owner, LoanAddress(owner), TokenAddress(g.Creator), h.ledger)
	h.random = randkey.Default(h.source, h.pending)

	if err := h.commit(g.Creator, MethodNew); err != nil {
		return xerrors.Errorf("deploy genesis: %w", err)
	}
	h.log.Info("deployed ledger", "creator", g.Creator, "supply", g.TotalSupply, "symbol", string(g.Symbol))
	return nil
}

// load replaces the in-memory contracts with the last committed state.
func (h *Host) load() error {
	snap, err := h.store.LoadLedger()
	if err != nil {
		return err
	}
	loanState, err := h.store.LoadLoan()
	if err != nil {
		return err
	}
	value, err := h.store.LoadRandom()
	if err != nil {
		return err
	}
	tip, err := h.store.Tip()
	if err != nil {
		return err
	}
	if tip == nil {
		return xerrors.New("store has state but no receipts")
	}
	lastSeq, err := h.store.LastSeq()
	if err != nil {
		return err
	}

	ledger, err := tokens.Restore(snap, h.pending)
	if err != nil {
		return xerrors.Errorf("restore ledger: %w", err)
	}
	h.ledger = ledger
	h.delegate = delegate.New(ledger)
	h.loan = loan.Restore(loanState, ledger)
	h.random = randkey.New(value, h.source, h.pending)
	h.tip = tip
	h.lastSeq = lastSeq
	return nil
}

// Invoke runs fn as one atomic call made by caller and returns the receipt
// it committed. When fn fails nothing is journaled or persisted and the
// error is returned unchanged.
func (h *Host) Invoke(ctx context.Context, caller tokens.AccountID, method string, fn func() error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if err := ctx.Err(); err != nil {
		h.mu.Unlock()
		return nil, err
	}

	h.pending.Reset()
	if err := fn(); err != nil {
		h.pending.Reset()
		h.mu.Unlock()
		h.log.Debug("call rejected", "method", method, "caller", caller, "error", err)
		return nil, err
	}

	if err := h.commit(caller, method); err != nil {
		h.mu.Unlock()
		return nil, err
	}
	receipt := h.tip

	h.outMu.Lock()
	h.outbox = append(h.outbox, receipt.Events)
	h.outMu.Unlock()
	h.mu.Unlock()

	h.deliver()
	return receipt, nil
}

// deliver drains the outbox into the subscribers. Only one goroutine
// drains at a time; the others leave their notifications to it.
func (h *Host) deliver() {
	h.outMu.Lock()
	if h.delivering {
		h.outMu.Unlock()
		return
	}
	h.delivering = true
	for len(h.outbox) > 0 {
		notes := h.outbox[0]
		h.outbox = h.outbox[1:]
		h.outMu.Unlock()

		h.subMu.Lock()
		subs := append([]Subscriber(nil), h.subscribers...)
		h.subMu.Unlock()
		for _, sub := range subs {
			sub(notes)
		}

		h.outMu.Lock()
	}
	h.delivering = false
	h.outMu.Unlock()
}

// commit journals the pending events and chains a receipt. Callers hold mu.
func (h *Host) commit(caller tokens.AccountID, method string) error {
	events := h.pending.Events()
	h.pending.Reset()

	notes := make([]Notification, 0, len(events))
	seq := h.lastSeq
	for _, e := range events {
		seq++
		n, err := newNotification(seq, e)
		if err != nil {
			return h.rollback(err)
		}
		notes = append(notes, n)
	}

	var receipt *Receipt
	if h.tip == nil {
		receipt = NewReceipt(0, h.now().Unix(), caller, method, notes, nil)
	} else {
		receipt = NewReceipt(h.tip.Height+1, h.now().Unix(), caller, method, notes, h.tip.Hash)
	}

	err := h.store.Commit(Commit{
		Ledger:  h.ledger.Snapshot(),
		Loan:    h.loan.State(),
		Random:  h.random.Get(),
		Events:  notes,
		Receipt: receipt,
	})
	if err != nil {
		return h.rollback(xerrors.Errorf("commit %s: %w", method, err))
	}

	h.tip = receipt
	h.lastSeq = seq
	h.log.Debug("committed", "method", method, "height", receipt.Height, "events", len(notes))
	return nil
}

// rollback drops the in-memory effects of a call that could not be
// persisted by reloading the last committed state.
func (h *Host) rollback(cause error) error {
	if h.tip == nil {
		return cause
	}
	if err := h.load(); err != nil {
		h.log.Error("reload after failed commit", "error", err)
		return xerrors.Errorf("reload failed (%v): %w", err, cause)
	}
	h.log.Warn("call not persisted, state reloaded", "error", cause)
	return cause
}

// Subscribe registers fn for every future commit.
func (h *Host) Subscribe(fn Subscriber) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

func (h *Host) Transfer(ctx context.Context, caller, to tokens.AccountID, value tokens.Amount) (*Receipt, error) {
	return h.Invoke(ctx, caller, MethodTransfer, func() error {
		return h.ledger.Transfer(caller, to, value)
	})
}

func (h *Host) Approve(ctx context.Context, caller, spender tokens.AccountID, value tokens.Amount) (*Receipt, error) {
	return h.Invoke(ctx, caller, MethodApprove, func() error {
		return h.ledger.Approve(caller, spender, value)
	})
}

func (h *Host) TransferFrom(ctx context.Context, caller, from, to tokens.AccountID, value tokens.Amount) (*Receipt, error) {
	return h.Invoke(ctx, caller, MethodTransferFrom, func() error {
		return h.ledger.TransferFrom(caller, from, to, value)
	})
}

func (h *Host) Issue(ctx context.Context, caller tokens.AccountID, amount tokens.Amount) (*Receipt, error) {
	return h.Invoke(ctx, caller, MethodIssue, func() error {
		return h.ledger.Issue(caller, amount)
	})
}

func (h *Host) Burn(ctx context.Context, caller tokens.AccountID, amount tokens.Amount) (*Receipt, error) {
	return h.Invoke(ctx, caller, MethodBurn, func() error {
		return h.ledger.Burn(caller, amount)
	})
}

func (h *Host) RechargeForBorrowing(ctx context.Context, caller tokens.AccountID, amount tokens.Amount) (*Receipt, error) {
	return h.Invoke(ctx, caller, MethodRechargeForBorrowing, func() error {
		return h.loan.RechargeForBorrowing(caller, amount)
	})
}

func (h *Host) SetMinCollateralRatio(ctx context.Context, caller, token tokens.AccountID, ratio uint32) (*Receipt, error) {
	return h.Invoke(ctx, caller, MethodSetMinCollateralRatio, func() error {
		return h.loan.SetMinCollateralRatio(caller, token, ratio)
	})
}

func (h *Host) UpdateRandom(ctx context.Context, caller tokens.AccountID) (*Receipt, error) {
	return h.Invoke(ctx, caller, MethodUpdateRandom, func() error {
		return h.random.Update()
	})
}

func (h *Host) TokenInfo() TokenInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return TokenInfo{
		Address:     TokenAddress(h.ledger.Creator()),
		Creator:     h.ledger.Creator(),
		Name:        string(h.ledger.Name()),
		Symbol:      string(h.ledger.Symbol()),
		TotalSupply: h.ledger.TotalSupply(),
	}
}

func (h *Host) BalanceOf(account tokens.AccountID) tokens.Amount {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ledger.BalanceOf(account)
}

func (h *Host) Allowance(owner, spender tokens.AccountID) tokens.Amount {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ledger.Allowance(owner, spender)
}

// DelegateCall reads owner's balance through the delegate contract.
func (h *Host) DelegateCall(owner tokens.AccountID) tokens.Amount {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delegate.Call(owner)
}

func (h *Host) LoanInfo() loan.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loan.State()
}

func (h *Host) Random() [32]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.random.Get()
}

// Tip returns the latest receipt.
func (h *Host) Tip() *Receipt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tip
}

// LastSeq is the sequence number of the newest notification.
func (h *Host) LastSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeq
}

// Events returns journaled notifications with Seq >= since.
func (h *Host) Events(since uint64, limit int) ([]Notification, error) {
	return h.store.Events(since, limit)
}

// Receipts returns up to limit receipts, newest first. limit <= 0 returns
// the whole chain.
func (h *Host) Receipts(limit int) ([]*Receipt, error) {
	it, err := h.store.Iterator()
	if err != nil {
		return nil, err
	}
	var out []*Receipt
	for limit <= 0 || len(out) < limit {
		r, err := it.Next()
		if err != nil {
			return nil, err
		}
		if r == nil {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

// Validate ensures the integrity of the whole receipt chain and that the
// live ledger's balances add up to its total supply.
func (h *Host) Validate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	chain, err := h.Receipts(0)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return xerrors.New("empty receipt chain")
	}

	var prev *Receipt
	for i := len(chain) - 1; i >= 0; i-- {
		r := chain[i]
		if err := r.Validate(prev); err != nil {
			return err
		}
		prev = r
	}
	if !bytes.Equal(prev.Hash, h.tip.Hash) {
		return xerrors.Errorf("stored tip %x differs from live tip %x", prev.Hash, h.tip.Hash)
	}
	return h.ledger.CheckSupply()
}
