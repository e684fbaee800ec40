package tokens

// Error is the closed set of ways a ledger operation can fail.
type Error uint8

const (
	// ErrInsufficientBalance means the source balance is below the amount to move or burn.
	ErrInsufficientBalance Error = iota + 1
	// ErrInsufficientAllowance means the spender's remaining allowance is below the value.
	ErrInsufficientAllowance
	// ErrOnlyForCreator means a creator-only operation was called by someone else.
	ErrOnlyForCreator
	// ErrArithmeticOverflow rejects a call whose result does not fit in an Amount.
	ErrArithmeticOverflow
)

func (e Error) Error() string {
	switch e {
	case ErrInsufficientBalance:
		return "insufficient balance"
	case ErrInsufficientAllowance:
		return "insufficient allowance"
	case ErrOnlyForCreator:
		return "only for creator"
	case ErrArithmeticOverflow:
		return "arithmetic overflow"
	default:
		return "unknown ledger error"
	}
}

// Kind is the stable identifier used on the wire.
func (e Error) Kind() string {
	switch e {
	case ErrInsufficientBalance:
		return "InsufficientBalance"
	case ErrInsufficientAllowance:
		return "InsufficientAllowance"
	case ErrOnlyForCreator:
		return "OnlyForCreator"
	case ErrArithmeticOverflow:
		return "ArithmeticOverflow"
	default:
		return "Unknown"
	}
}
