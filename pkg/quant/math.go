package quant

import "github.com/shopspring/decimal"

// mulDivRound computes a*b/den with the intermediate product kept exact and
// the quotient rounded half away from zero. Panics on a zero denominator,
// which always indicates a caller bug (prices and scales are positive).
func mulDivRound(a, b, den int64) int64 {
	if den == 0 {
		panic("quant: mulDivRound division by zero")
	}
	q := decimal.NewFromInt(a).
		Mul(decimal.NewFromInt(b)).
		DivRound(decimal.NewFromInt(den), 0)
	return q.IntPart()
}

// mulDivTrunc computes a*b/den exactly, truncating the quotient toward zero.
func mulDivTrunc(a, b, den int64) int64 {
	if den == 0 {
		panic("quant: mulDivTrunc division by zero")
	}
	q, _ := decimal.NewFromInt(a).
		Mul(decimal.NewFromInt(b)).
		QuoRem(decimal.NewFromInt(den), 0)
	return q.IntPart()
}
