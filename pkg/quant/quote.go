package quant

// Quote is the two-sided price derived from a mark price and a synthetic
// spread. Buy is the price a taker pays to go long (above mark), Sell the
// price received when going short or unwinding a long (below mark).
type Quote struct {
	Buy  Price
	Sell Price
}

// QuoteAt applies a symmetric spread of spreadBps basis points around the
// mark: each side moves by half the spread. With spreadBps == 0 both sides
// equal the mark.
//
//	buy  = round(mark * (1 + spreadBps/2/10000))
//	sell = round(mark * (1 - spreadBps/2/10000))
func QuoteAt(mark Price, spreadBps int64) Quote {
	const denom = 2 * 10000
	return Quote{
		Buy:  Price(mulDivRound(int64(mark), denom+spreadBps, denom)),
		Sell: Price(mulDivRound(int64(mark), denom-spreadBps, denom)),
	}
}

// SettleCents computes the realized PnL in cents for a position with the
// given notional exposure, entry and exit prices. A long profits when the
// exit is above the entry; a short when below. The quotient truncates toward
// zero:
//
//	pnl = trunc(exposure * (exit - entry) / entry)   // long
//
// Entry must be positive; a zero entry would mean a position was opened
// without a mark price, which the lifecycle layer forbids.
func SettleCents(long bool, exposureCents int64, entry, exit Price) int64 {
	if entry <= 0 {
		panic("quant: settle requires a positive entry price")
	}
	diff := int64(exit) - int64(entry)
	if !long {
		diff = -diff
	}
	return mulDivTrunc(exposureCents, diff, int64(entry))
}
