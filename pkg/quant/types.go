package quant

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price represents an instrument price multiplied by 10^decimals.
// E.g., with 4 decimals, $100.00 = 1,000,000 Price units.
// Internal pricing math is integer-only; floats never enter the hotpath.
type Price int64

const (
	// CentsPerUSD converts USD amounts to integer cents.
	CentsPerUSD = 100

	// QtyDecimals is the fixed scale for trade quantities (10^8, satoshi-style).
	QtyDecimals = 8
)

// Scale returns 10^decimals as an int64 multiplier.
func Scale(decimals int32) int64 {
	s := int64(1)
	for i := int32(0); i < decimals; i++ {
		s *= 10
	}
	return s
}

// ParsePrice converts a decimal price string from an exchange API into a
// scaled integer Price. Parsing goes through shopspring/decimal so the
// conversion is exact; the result is rounded half away from zero, matching
// the rounding used everywhere else in this package.
func ParsePrice(s string, decimals int32) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	scaled := d.Shift(decimals).Round(0)
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("parse price %q: out of int64 range", s)
	}
	return Price(scaled.IntPart()), nil
}

// ParseQty converts a decimal quantity string into scaled integer units
// (10^QtyDecimals).
func ParseQty(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse qty %q: %w", s, err)
	}
	scaled := d.Shift(QtyDecimals).Round(0)
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("parse qty %q: out of int64 range", s)
	}
	return scaled.IntPart(), nil
}

// Cents converts a scaled price into integer USD cents.
func (p Price) Cents(decimals int32) int64 {
	return mulDivRound(int64(p), CentsPerUSD, Scale(decimals))
}
