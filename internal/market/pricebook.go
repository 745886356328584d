package market

import (
	"sync"

	"github.com/hashimhashmi02/Exness-be/pkg/quant"
)

// PriceBook is the process-wide mark-price cache: latest scaled price per
// symbol, written by the feed ingester and read by every other component.
// Last write wins; readers never observe a torn value and absence is
// reported explicitly rather than defaulted to zero.
type PriceBook struct {
	mu     sync.RWMutex
	prices map[string]quant.Price
}

func NewPriceBook() *PriceBook {
	return &PriceBook{prices: make(map[string]quant.Price)}
}

// Set overwrites the mark for symbol.
func (b *PriceBook) Set(symbol string, price quant.Price) {
	b.mu.Lock()
	b.prices[symbol] = price
	b.mu.Unlock()
}

// Get returns the latest mark and whether one has been cached.
func (b *PriceBook) Get(symbol string) (quant.Price, bool) {
	b.mu.RLock()
	p, ok := b.prices[symbol]
	b.mu.RUnlock()
	return p, ok
}

// Snapshot copies the current marks. Iteration happens on the copy so
// callers never hold the book's lock.
func (b *PriceBook) Snapshot() map[string]quant.Price {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]quant.Price, len(b.prices))
	for sym, p := range b.prices {
		out[sym] = p
	}
	return out
}
