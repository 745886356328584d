package domain

import "github.com/hashimhashmi02/Exness-be/pkg/quant"

// Tick is a normalized upstream trade: symbol, scaled price and the
// exchange timestamp in epoch milliseconds. Ticks are ephemeral; they are
// dispatched once to each registered consumer and never persisted.
type Tick struct {
	Symbol string
	Price  quant.Price
	Qty    int64 // scaled by 10^quant.QtyDecimals; zero when the feed omits it
	TsMs   int64
}
