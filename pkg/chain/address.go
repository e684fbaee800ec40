package chain

import (
	"crypto/sha256"

	"example.com/tokenledger/pkg/tokens"
)

// ContractAddress derives the account id of a contract deployed by
// deployer. The same pair always yields the same address.
func ContractAddress(name string, deployer tokens.AccountID) tokens.AccountID {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write(deployer[:])
	var id tokens.AccountID
	copy(id[:], h.Sum(nil))
	return id
}

func TokenAddress(creator tokens.AccountID) tokens.AccountID {
	return ContractAddress("token", creator)
}

func LoanAddress(owner tokens.AccountID) tokens.AccountID {
	return ContractAddress("loan", owner)
}
