// Package loan is the collateral/borrowing contract layered on a token
// ledger. Only the recharge path touches the ledger; ratio and
// liquidation bookkeeping is held but not acted upon.
package loan

import (
	"errors"
	"sort"

	"golang.org/x/xerrors"

	"example.com/tokenledger/pkg/tokens"
)

var ErrOnlyForOwner = errors.New("only for owner")

// Token is the ledger surface the contract calls into.
type Token interface {
	TransferFrom(caller, from, to tokens.AccountID, value tokens.Amount) error
}

type pledgeKey struct {
	user  tokens.AccountID
	token tokens.AccountID
}

type Loan struct {
	owner     tokens.AccountID
	self      tokens.AccountID
	baseToken tokens.AccountID
	token     Token

	// remaining amount available to lend
	borrowingsBalance tokens.Amount
	// amount lent out so far
	totalBorrowings tokens.Amount

	minCollateralRatio map[tokens.AccountID]uint32
	pledges            map[pledgeKey]tokens.Amount
	borrowings         map[tokens.AccountID]tokens.Amount
}

// New creates the contract. caller becomes the owner; self is the
// contract's own account on the base token ledger.
func New(caller, self, baseToken tokens.AccountID, token Token) *Loan {
	return &Loan{
		owner:              caller,
		self:               self,
		baseToken:          baseToken,
		token:              token,
		minCollateralRatio: make(map[tokens.AccountID]uint32),
		pledges:            make(map[pledgeKey]tokens.Amount),
		borrowings:         make(map[tokens.AccountID]tokens.Amount),
	}
}

// Owner is the only account allowed to recharge or set ratios.
func (l *Loan) Owner() tokens.AccountID { return l.owner }

// Address is the contract's own account on the base token ledger.
func (l *Loan) Address() tokens.AccountID { return l.self }

// BaseToken is the ledger the contract lends from.
func (l *Loan) BaseToken() tokens.AccountID { return l.baseToken }

// BorrowingsBalance is the base token held by the contract for lending.
func (l *Loan) BorrowingsBalance() tokens.Amount { return l.borrowingsBalance }

// TotalBorrowings is the amount currently lent out.
func (l *Loan) TotalBorrowings() tokens.Amount { return l.totalBorrowings }

// RechargeForBorrowing pulls amount of the base token from the owner into
// the contract's custody. The owner must have approved the contract as a
// spender first. borrowingsBalance only grows when the ledger accepts.
func (l *Loan) RechargeForBorrowing(caller tokens.AccountID, amount tokens.Amount) error {
	if caller != l.owner {
		return ErrOnlyForOwner
	}
	next, err := l.borrowingsBalance.Add(amount)
	if err != nil {
		return err
	}
	if err := l.token.TransferFrom(l.self, caller, l.self, amount); err != nil {
		return xerrors.Errorf("recharge for borrowing: %w", err)
	}
	l.borrowingsBalance = next
	return nil
}

// SetMinCollateralRatio records the collateral ratio required for token.
// Zero clears it. Only the owner may call it.
func (l *Loan) SetMinCollateralRatio(caller, token tokens.AccountID, ratio uint32) error {
	if caller != l.owner {
		return ErrOnlyForOwner
	}
	if ratio == 0 {
		delete(l.minCollateralRatio, token)
		return nil
	}
	l.minCollateralRatio[token] = ratio
	return nil
}

// MinCollateralRatio is zero for tokens without a configured ratio.
func (l *Loan) MinCollateralRatio(token tokens.AccountID) uint32 {
	return l.minCollateralRatio[token]
}

// PledgeOf is the amount of token user has pledged.
func (l *Loan) PledgeOf(user, token tokens.AccountID) tokens.Amount {
	return l.pledges[pledgeKey{user: user, token: token}]
}

// BorrowingOf is the amount user currently owes.
func (l *Loan) BorrowingOf(user tokens.AccountID) tokens.Amount {
	return l.borrowings[user]
}

type RatioEntry struct {
	Token tokens.AccountID `json:"token"`
	Ratio uint32           `json:"ratio"`
}

type PledgeEntry struct {
	User  tokens.AccountID `json:"user"`
	Token tokens.AccountID `json:"token"`
	Value tokens.Amount    `json:"value"`
}

// State is the persisted form of the contract.
type State struct {
	Owner             tokens.AccountID      `json:"owner"`
	Self              tokens.AccountID      `json:"self"`
	BaseToken         tokens.AccountID      `json:"base_token"`
	BorrowingsBalance tokens.Amount         `json:"borrowings_balance"`
	TotalBorrowings   tokens.Amount         `json:"total_borrowings"`
	Ratios            []RatioEntry          `json:"ratios"`
	Pledges           []PledgeEntry         `json:"pledges"`
	Borrowings        []tokens.BalanceEntry `json:"borrowings"`
}

// State captures the contract for persistence.
func (l *Loan) State() State {
	s := State{
		Owner:             l.owner,
		Self:              l.self,
		BaseToken:         l.baseToken,
		BorrowingsBalance: l.borrowingsBalance,
		TotalBorrowings:   l.totalBorrowings,
	}
	for token, ratio := range l.minCollateralRatio {
		s.Ratios = append(s.Ratios, RatioEntry{Token: token, Ratio: ratio})
	}
	for key, value := range l.pledges {
		s.Pledges = append(s.Pledges, PledgeEntry{User: key.user, Token: key.token, Value: value})
	}
	for user, value := range l.borrowings {
		s.Borrowings = append(s.Borrowings, tokens.BalanceEntry{Account: user, Value: value})
	}
	sort.Slice(s.Ratios, func(i, j int) bool { return s.Ratios[i].Token.Less(s.Ratios[j].Token) })
	sort.Slice(s.Pledges, func(i, j int) bool {
		if s.Pledges[i].User != s.Pledges[j].User {
			return s.Pledges[i].User.Less(s.Pledges[j].User)
		}
		return s.Pledges[i].Token.Less(s.Pledges[j].Token)
	})
	sort.Slice(s.Borrowings, func(i, j int) bool { return s.Borrowings[i].Account.Less(s.Borrowings[j].Account) })
	return s
}

// Restore rebuilds the contract from a persisted State.
func Restore(s State, token Token) *Loan {
	l := New(s.Owner, s.Self, s.BaseToken, token)
	l.borrowingsBalance = s.BorrowingsBalance
	l.totalBorrowings = s.TotalBorrowings
	for _, e := range s.Ratios {
		l.minCollateralRatio[e.Token] = e.Ratio
	}
	for _, e := range s.Pledges {
		l.pledges[pledgeKey{user: e.User, token: e.Token}] = e.Value
	}
	for _, e := range s.Borrowings {
		l.borrowings[e.Account] = e.Value
	}
	return l
}
