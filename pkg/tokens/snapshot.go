package tokens

import (
	"errors"
	"sort"

	"golang.org/x/xerrors"
)

var (
	ErrSupplyMismatch   = errors.New("balances do not sum to total supply")
	ErrDuplicateAccount = errors.New("duplicate account in snapshot")
)

type BalanceEntry struct {
	Account AccountID `json:"account"`
	Value   Amount    `json:"value"`
}

type AllowanceEntry struct {
	Owner   AccountID `json:"owner"`
	Spender AccountID `json:"spender"`
	Value   Amount    `json:"value"`
}

// Snapshot is the full persisted form of a Ledger. Entries are sorted so
// that equal ledgers encode to equal bytes.
type Snapshot struct {
	Creator     AccountID        `json:"creator"`
	Name        []byte           `json:"name"`
	Symbol      []byte           `json:"symbol"`
	TotalSupply Amount           `json:"total_supply"`
	Balances    []BalanceEntry   `json:"balances"`
	Allowances  []AllowanceEntry `json:"allowances"`
}

func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{
		Creator:     l.creator,
		Name:        l.Name(),
		Symbol:      l.Symbol(),
		TotalSupply: l.totalSupply,
		Balances:    make([]BalanceEntry, 0, len(l.balances)),
		Allowances:  make([]AllowanceEntry, 0, len(l.allowances)),
	}
	for account, value := range l.balances {
		s.Balances = append(s.Balances, BalanceEntry{Account: account, Value: value})
	}
	for key, value := range l.allowances {
		s.Allowances = append(s.Allowances, AllowanceEntry{Owner: key.owner, Spender: key.spender, Value: value})
	}
	sort.Slice(s.Balances, func(i, j int) bool {
		return s.Balances[i].Account.Less(s.Balances[j].Account)
	})
	sort.Slice(s.Allowances, func(i, j int) bool {
		a, b := s.Allowances[i], s.Allowances[j]
		if a.Owner != b.Owner {
			return a.Owner.Less(b.Owner)
		}
		return a.Spender.Less(b.Spender)
	})
	return s
}

// Restore rebuilds a ledger from a snapshot without emitting anything.
// It refuses snapshots whose balances do not add up to the total supply.
func Restore(s Snapshot, sink EventSink) (*Ledger, error) {
	if sink == nil {
		sink = discard{}
	}
	l := &Ledger{
		creator:     s.Creator,
		name:        append([]byte(nil), s.Name...),
		symbol:      append([]byte(nil), s.Symbol...),
		totalSupply: s.TotalSupply,
		balances:    make(map[AccountID]Amount, len(s.Balances)),
		allowances:  make(map[allowanceKey]Amount, len(s.Allowances)),
		sink:        sink,
	}
	for _, e := range s.Balances {
		if _, ok := l.balances[e.Account]; ok {
			return nil, xerrors.Errorf("balance of %s: %w", e.Account, ErrDuplicateAccount)
		}
		l.setBalance(e.Account, e.Value)
	}
	for _, e := range s.Allowances {
		key := allowanceKey{owner: e.Owner, spender: e.Spender}
		if _, ok := l.allowances[key]; ok {
			return nil, xerrors.Errorf("allowance of %s for %s: %w", e.Owner, e.Spender, ErrDuplicateAccount)
		}
		l.setAllowance(key, e.Value)
	}
	if err := l.CheckSupply(); err != nil {
		return nil, err
	}
	return l, nil
}

// CheckSupply verifies that total supply equals the sum of all balances.
func (l *Ledger) CheckSupply() error {
	var sum Amount
	for account, value := range l.balances {
		next, err := sum.Add(value)
		if err != nil {
			return xerrors.Errorf("summing balance of %s: %w", account, err)
		}
		sum = next
	}
	if !sum.Eq(l.totalSupply) {
		return xerrors.Errorf("sum %s, total supply %s: %w", sum, l.totalSupply, ErrSupplyMismatch)
	}
	return nil
}
