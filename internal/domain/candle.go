package domain

import "github.com/hashimhashmi02/Exness-be/pkg/quant"

// Candle intervals persisted by the aggregator and backfill.
const (
	IntervalOneMin  = "1m"
	IntervalFiveMin = "5m"
)

// Candle is an OHLC bar for one symbol and bucket. BucketStart is epoch
// milliseconds aligned to the interval width. Invariant for every persisted
// bar: High >= max(Open, Close) and Low <= min(Open, Close).
type Candle struct {
	Symbol      string
	Interval    string
	BucketStart int64
	Open        quant.Price
	High        quant.Price
	Low         quant.Price
	Close       quant.Price
	VolumeQty   int64 // scaled by 10^quant.QtyDecimals
}

// Extend folds a trade into the bar: close follows the trade, high/low
// stretch, volume accumulates.
func (c *Candle) Extend(price quant.Price, qty int64) {
	c.Close = price
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.VolumeQty += qty
}
