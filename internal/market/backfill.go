package market

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
)

const fiveMinMs = 5 * minuteMs

// KlineSource fetches historical bars from the upstream REST API.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]domain.Candle, error)
}

// CandleStore is the slice of the storage layer the backfiller needs.
type CandleStore interface {
	CandleSink
	LastCandleStart(ctx context.Context, symbol, interval string) (int64, bool, error)
	RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
}

// Backfiller keeps stored candle history in sync with the upstream REST
// endpoint: it fetches 1m bars incrementally from the last stored bucket and
// derives 5m bars from recent 1m history. Errors are logged and retried on
// the next poll; a failed poll never stops the loop.
type Backfiller struct {
	src      KlineSource
	store    CandleStore
	symbols  []string
	interval time.Duration
}

func NewBackfiller(src KlineSource, store CandleStore, symbols []string, interval time.Duration) *Backfiller {
	return &Backfiller{src: src, store: store, symbols: symbols, interval: interval}
}

// Run polls until ctx is cancelled. The first sync happens immediately.
func (f *Backfiller) Run(ctx context.Context) {
	f.syncAll(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.syncAll(ctx)
		}
	}
}

func (f *Backfiller) syncAll(ctx context.Context) {
	for _, sym := range f.symbols {
		if err := f.syncSymbol(ctx, sym); err != nil {
			slog.Error("candle backfill failed",
				slog.String("symbol", sym), slog.Any("error", err))
		}
	}
}

func (f *Backfiller) syncSymbol(ctx context.Context, symbol string) error {
	var start int64
	last, ok, err := f.store.LastCandleStart(ctx, symbol, domain.IntervalOneMin)
	if err != nil {
		return err
	}
	if ok {
		start = last + minuteMs
	}

	bars, err := f.src.Klines(ctx, symbol, domain.IntervalOneMin, start, 500)
	if err != nil {
		return err
	}
	for _, bar := range bars {
		if err := f.store.UpsertCandle(ctx, bar); err != nil {
			return err
		}
	}

	return f.aggregateFiveMin(ctx, symbol)
}

// aggregateFiveMin rebuilds recent 5m bars from stored 1m history.
func (f *Backfiller) aggregateFiveMin(ctx context.Context, symbol string) error {
	recent, err := f.store.RecentCandles(ctx, symbol, domain.IntervalOneMin, 200)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		return nil
	}

	var bars []domain.Candle
	byBucket := make(map[int64]int)
	for _, c := range recent {
		bucket := c.BucketStart / fiveMinMs * fiveMinMs
		idx, ok := byBucket[bucket]
		if !ok {
			bars = append(bars, domain.Candle{
				Symbol:      symbol,
				Interval:    domain.IntervalFiveMin,
				BucketStart: bucket,
				Open:        c.Open,
				High:        c.High,
				Low:         c.Low,
				Close:       c.Close,
				VolumeQty:   c.VolumeQty,
			})
			byBucket[bucket] = len(bars) - 1
			continue
		}
		bar := &bars[idx]
		bar.Close = c.Close
		if c.High > bar.High {
			bar.High = c.High
		}
		if c.Low < bar.Low {
			bar.Low = c.Low
		}
		bar.VolumeQty += c.VolumeQty
	}

	for _, bar := range bars {
		if err := f.store.UpsertCandle(ctx, bar); err != nil {
			return err
		}
	}
	return nil
}
