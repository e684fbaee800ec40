package tokens

type allowanceKey struct {
	owner   AccountID
	spender AccountID
}

// Ledger holds balances and allowances of one fungible token.
//
// It has no locking: the host is expected to run one operation at a time.
// Every operation validates all of its preconditions before writing, so a
// failed call leaves the ledger exactly as it was.
type Ledger struct {
	creator     AccountID
	name        []byte
	symbol      []byte
	totalSupply Amount
	balances    map[AccountID]Amount
	allowances  map[allowanceKey]Amount
	sink        EventSink
}

// New creates a ledger and credits the whole supply to caller.
func New(caller AccountID, name, symbol []byte, totalSupply Amount, sink EventSink) *Ledger {
	if sink == nil {
		sink = discard{}
	}
	l := &Ledger{
		creator:     caller,
		name:        append([]byte(nil), name...),
		symbol:      append([]byte(nil), symbol...),
		totalSupply: totalSupply,
		balances:    make(map[AccountID]Amount),
		allowances:  make(map[allowanceKey]Amount),
		sink:        sink,
	}
	l.setBalance(caller, totalSupply)
	l.sink.Emit(Transfer{From: nil, To: Some(caller), Value: totalSupply})
	return l
}

// Creator is the account that deployed the ledger and alone may issue.
func (l *Ledger) Creator() AccountID { return l.creator }

// Name returns a copy of the token name.
func (l *Ledger) Name() []byte { return append([]byte(nil), l.name...) }

// Symbol returns a copy of the token symbol.
func (l *Ledger) Symbol() []byte { return append([]byte(nil), l.symbol...) }

// TotalSupply is the sum of all balances.
func (l *Ledger) TotalSupply() Amount { return l.totalSupply }

// BalanceOf returns zero for accounts that never held tokens.
func (l *Ledger) BalanceOf(account AccountID) Amount {
	return l.balances[account]
}

// Allowance is what spender may still move out of owner's balance.
func (l *Ledger) Allowance(owner, spender AccountID) Amount {
	return l.allowances[allowanceKey{owner: owner, spender: spender}]
}

// Transfer moves value from caller to to.
func (l *Ledger) Transfer(caller, to AccountID, value Amount) error {
	return l.transferFromTo(Some(caller), Some(to), value)
}

// Approve sets, not adds to, the amount spender may move out of caller's
// balance. The caller's current balance is irrelevant.
func (l *Ledger) Approve(caller, spender AccountID, value Amount) error {
	l.setAllowance(allowanceKey{owner: caller, spender: spender}, value)
	l.sink.Emit(Approval{Owner: caller, Spender: spender, Value: value})
	return nil
}

// TransferFrom moves value from from to to on behalf of caller, consuming
// caller's allowance. The allowance is untouched when the move fails.
// No Approval is emitted for the decrement.
func (l *Ledger) TransferFrom(caller, from, to AccountID, value Amount) error {
	key := allowanceKey{owner: from, spender: caller}
	allowance := l.allowances[key]
	if allowance.Lt(value) {
		return ErrInsufficientAllowance
	}
	remaining, err := allowance.Sub(value)
	if err != nil {
		return err
	}
	if err := l.transferFromTo(Some(from), Some(to), value); err != nil {
		return err
	}
	l.setAllowance(key, remaining)
	return nil
}

// Issue mints amount to the creator.
func (l *Ledger) Issue(caller AccountID, amount Amount) error {
	if caller != l.creator {
		return ErrOnlyForCreator
	}
	supply, err := l.totalSupply.Add(amount)
	if err != nil {
		return err
	}
	if err := l.transferFromTo(nil, Some(l.creator), amount); err != nil {
		return err
	}
	l.totalSupply = supply
	return nil
}

// Burn destroys amount from caller's balance.
func (l *Ledger) Burn(caller AccountID, amount Amount) error {
	if l.BalanceOf(caller).Lt(amount) {
		return ErrInsufficientBalance
	}
	supply, err := l.totalSupply.Sub(amount)
	if err != nil {
		return err
	}
	if err := l.transferFromTo(Some(caller), nil, amount); err != nil {
		return err
	}
	l.totalSupply = supply
	return nil
}

// transferFromTo is the primitive behind every balance change. It does not
// touch totalSupply; callers keep it consistent.
func (l *Ledger) transferFromTo(from, to *AccountID, value Amount) error {
	var fromBalance, toBalance Amount
	if from != nil {
		current := l.BalanceOf(*from)
		if current.Lt(value) {
			return ErrInsufficientBalance
		}
		next, err := current.Sub(value)
		if err != nil {
			return err
		}
		fromBalance = next
	}
	if to != nil {
		base := l.BalanceOf(*to)
		if from != nil && *from == *to {
			base = fromBalance
		}
		next, err := base.Add(value)
		if err != nil {
			return err
		}
		toBalance = next
	}

	if from != nil {
		l.setBalance(*from, fromBalance)
	}
	if to != nil {
		l.setBalance(*to, toBalance)
	}

	l.sink.Emit(Transfer{From: copyID(from), To: copyID(to), Value: value})
	return nil
}

// setBalance drops zero entries so an explicit zero and an absent key are
// the same state.
func (l *Ledger) setBalance(account AccountID, value Amount) {
	if value.IsZero() {
		delete(l.balances, account)
		return
	}
	l.balances[account] = value
}

func (l *Ledger) setAllowance(key allowanceKey, value Amount) {
	if value.IsZero() {
		delete(l.allowances, key)
		return
	}
	l.allowances[key] = value
}

func copyID(id *AccountID) *AccountID {
	if id == nil {
		return nil
	}
	return Some(*id)
}
