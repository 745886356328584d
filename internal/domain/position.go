package domain

import (
	"time"

	"github.com/hashimhashmi02/Exness-be/pkg/quant"
	"github.com/hashimhashmi02/Exness-be/pkg/safe"
)

// Side is the direction of a leveraged position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Status of a position. Transitions OPEN -> CLOSED exactly once.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Position represents a leveraged position priced against the mark.
// All monetary values are strictly int64: margin and pnl in cents, prices
// scaled by the configured decimal factor.
type Position struct {
	ID        string
	AccountID string
	Symbol    string
	Side      Side

	MarginCents int64
	Leverage    int
	EntryPrice  quant.Price

	// StopLoss and TakeProfit are optional triggers; zero means unset.
	StopLoss   quant.Price
	TakeProfit quant.Price

	Status   Status
	OpenedAt time.Time

	// Set on close.
	ClosePrice quant.Price
	PnLCents   int64
	ClosedAt   time.Time
}

// IsLong reports whether the position profits from a rising mark.
func (p *Position) IsLong() bool {
	return p.Side == SideLong
}

// ExposureCents is the notional exposure: margin multiplied by leverage.
// Checked: a corrupted leverage or margin crashes rather than wraps.
func (p *Position) ExposureCents() int64 {
	return safe.SafeMul(p.MarginCents, int64(p.Leverage))
}
