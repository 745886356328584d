package domain

import "errors"

// Sentinel errors for the trading core. Callers classify failures with
// errors.Is; layers add context with fmt.Errorf("...: %w", err).
var (
	// ErrValidation covers bad symbols, disallowed leverage, non-positive
	// margin and inconsistent stop/target brackets. Raised before any state
	// mutation.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds means the account balance cannot cover the
	// requested margin. Nothing is mutated.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound means the account or position does not exist, or is not
	// visible to the requesting account.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClosed means the position was CLOSED at commit time. The
	// risk watcher treats it as a benign race and takes no wallet action.
	ErrAlreadyClosed = errors.New("position already closed")

	// ErrPriceUnavailable means no mark has been cached for the symbol yet.
	// Quoting operations surface it instead of defaulting to a price.
	ErrPriceUnavailable = errors.New("no price available")
)
