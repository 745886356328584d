package quant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteAt_SpreadBrackets(t *testing.T) {
	marks := []Price{1, 99, 1000000, 123456789, 987654321012}
	spreads := []int64{0, 1, 10, 100, 250, 10000}

	for _, mark := range marks {
		for _, bps := range spreads {
			q := QuoteAt(mark, bps)
			assert.LessOrEqual(t, q.Sell, mark, "mark=%d bps=%d", mark, bps)
			assert.GreaterOrEqual(t, q.Buy, mark, "mark=%d bps=%d", mark, bps)
		}
	}
}

func TestQuoteAt_ZeroSpread(t *testing.T) {
	q := QuoteAt(1000000, 0)
	assert.Equal(t, Price(1000000), q.Buy)
	assert.Equal(t, Price(1000000), q.Sell)
}

func TestQuoteAt_100Bps(t *testing.T) {
	// $100.00 at 4 decimals, 100 bps spread: half-spread is 0.5%.
	q := QuoteAt(1000000, 100)
	assert.Equal(t, Price(1005000), q.Buy)
	assert.Equal(t, Price(995000), q.Sell)
}

func TestSettleCents_RoundTrip(t *testing.T) {
	// Long opened at 1005000, closed at 995000, margin $10.00 at 10x.
	// pnl = trunc(10000 * (995000-1005000) / 1005000) = -99 cents.
	pnl := SettleCents(true, 10000, 1005000, 995000)
	assert.Equal(t, int64(-99), pnl)

	// Margin plus pnl is what settles back to the wallet.
	assert.Equal(t, int64(901), 1000+pnl)

	// Short over the same prices is sign-negated.
	assert.Equal(t, int64(99), SettleCents(false, 10000, 1005000, 995000))
}

func TestSettleCents_LongGain(t *testing.T) {
	// Exit 1% above entry on 50000 cents exposure.
	pnl := SettleCents(true, 50000, 1000000, 1010000)
	assert.Equal(t, int64(500), pnl)
	assert.Equal(t, int64(-500), SettleCents(false, 50000, 1000000, 1010000))
}

func TestSettleCents_FlatExitIsZero(t *testing.T) {
	assert.Zero(t, SettleCents(true, 123456, 777777, 777777))
	assert.Zero(t, SettleCents(false, 123456, 777777, 777777))
}

func TestSettleCents_PanicsOnNonPositiveEntry(t *testing.T) {
	require.Panics(t, func() { SettleCents(true, 1000, 0, 1000) })
}

func TestSettleCents_LargeExposureNoOverflow(t *testing.T) {
	// exposure * diff exceeds int64; the exact intermediate must not wrap.
	exposure := int64(9_000_000_000_000)  // $90B in cents
	entry := Price(2_000_000_000_000)     // huge scaled price
	exit := Price(2_000_000_001_000)
	pnl := SettleCents(true, exposure, entry, exit)
	// 9e12 * 1000 / 2e12 = 4500
	assert.Equal(t, int64(4500), pnl)
}
