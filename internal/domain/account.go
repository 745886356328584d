package domain

import "time"

// Account holds a user's cash balance in integer cents. Balances are
// mutated only through margin reservation on open and settlement on close,
// each atomic with its paired position transition.
type Account struct {
	ID           string
	BalanceCents int64
	CreatedAt    time.Time
}
