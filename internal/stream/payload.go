package stream

// PriceUpdate is the per-symbol entry of a stream frame. Buy and sell are
// the quoted sides after the spread, scaled by Decimals.
type PriceUpdate struct {
	Symbol    string `json:"symbol"`
	BuyPrice  int64  `json:"buyPrice"`
	SellPrice int64  `json:"sellPrice"`
	Decimals  int32  `json:"decimals"`
}

// Frame is the envelope every subscriber receives, both for the snapshot
// on connect and for each subsequent push.
type Frame struct {
	PriceUpdates []PriceUpdate `json:"price_updates"`
}
