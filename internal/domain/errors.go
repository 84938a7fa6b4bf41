package domain

import "errors"

// Deterministic trade rejections. These are user-facing and never retried
// automatically; anything else coming out of the ledger is a transient
// storage failure and may be retried by the caller.
var (
	// ErrInsufficientFunds rejects a BUY whose cost exceeds the cash balance
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientHoldings rejects a SELL exceeding the held quantity
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrInvalidInput rejects a request that fails precondition checks
	ErrInvalidInput = errors.New("invalid input")

	// ErrAccountNotFound is returned when the account id resolves to nothing
	ErrAccountNotFound = errors.New("account not found")
)

// IsRejection reports whether err is a deterministic user-facing rejection
// rather than a transient storage failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientHoldings) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAccountNotFound)
}
