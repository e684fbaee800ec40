// Package delegate forwards balance reads to a token ledger.
package delegate

import "example.com/tokenledger/pkg/tokens"

// BalanceReader is the one ledger call the proxy needs.
type BalanceReader interface {
	BalanceOf(account tokens.AccountID) tokens.Amount
}

type Delegate struct {
	token BalanceReader
}

func New(token BalanceReader) *Delegate {
	return &Delegate{token: token}
}

// Call returns owner's balance on the referenced ledger.
func (d *Delegate) Call(owner tokens.AccountID) tokens.Amount {
	return d.token.BalanceOf(owner)
}
