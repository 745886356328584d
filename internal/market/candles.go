package market

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
)

const minuteMs = 60_000

// MinuteBucket aligns an epoch-millisecond timestamp to its 1-minute bucket.
func MinuteBucket(tsMs int64) int64 {
	return tsMs / minuteMs * minuteMs
}

// CandleSink persists completed bars. The storage layer implements it; tests
// substitute their own.
type CandleSink interface {
	UpsertCandle(ctx context.Context, c domain.Candle) error
}

// CandleBuilder buffers the in-progress 1-minute bar per symbol and hands
// completed bars to a bounded flush queue. Tick processing never performs
// I/O: a single drain goroutine writes queued bars to the sink in FIFO
// order, one at a time. A storage error drops that bar and is logged; the
// builder keeps running.
type CandleBuilder struct {
	sink CandleSink

	mu   sync.Mutex
	open map[string]*domain.Candle

	queue  chan domain.Candle
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewCandleBuilder(sink CandleSink, queueSize int) *CandleBuilder {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &CandleBuilder{
		sink:  sink,
		open:  make(map[string]*domain.Candle),
		queue: make(chan domain.Candle, queueSize),
	}
}

// Start launches the drain loop.
func (b *CandleBuilder) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.drain(ctx)
}

// Stop flushes the open bars into the queue and waits for the drain loop to
// finish writing whatever is queued.
func (b *CandleBuilder) Stop() {
	b.mu.Lock()
	for sym, bar := range b.open {
		b.enqueue(*bar)
		delete(b.open, sym)
	}
	b.mu.Unlock()

	close(b.queue)
	b.wg.Wait()
	if b.cancel != nil {
		b.cancel()
	}
}

// OnTick folds a trade into the symbol's open bar. A tick belonging to a
// new minute bucket closes the prior bar (enqueued for persistence) and
// opens a fresh one at the tick's price.
func (b *CandleBuilder) OnTick(t domain.Tick) {
	bucket := MinuteBucket(t.TsMs)

	b.mu.Lock()
	defer b.mu.Unlock()

	bar, ok := b.open[t.Symbol]
	if !ok || bar.BucketStart != bucket {
		if ok {
			b.enqueue(*bar)
		}
		b.open[t.Symbol] = &domain.Candle{
			Symbol:      t.Symbol,
			Interval:    domain.IntervalOneMin,
			BucketStart: bucket,
			Open:        t.Price,
			High:        t.Price,
			Low:         t.Price,
			Close:       t.Price,
			VolumeQty:   t.Qty,
		}
		return
	}
	bar.Extend(t.Price, t.Qty)
}

// OpenBar returns a copy of the in-progress bar for symbol, if any.
func (b *CandleBuilder) OpenBar(symbol string) (domain.Candle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bar, ok := b.open[symbol]
	if !ok {
		return domain.Candle{}, false
	}
	return *bar, true
}

// enqueue never blocks the tick path: when the queue is full the completed
// bar is dropped and the loss logged.
func (b *CandleBuilder) enqueue(bar domain.Candle) {
	select {
	case b.queue <- bar:
	default:
		slog.Warn("candle queue full, dropping bar",
			slog.String("symbol", bar.Symbol),
			slog.Int64("bucket", bar.BucketStart))
	}
}

func (b *CandleBuilder) drain(ctx context.Context) {
	defer b.wg.Done()
	for bar := range b.queue {
		if err := b.sink.UpsertCandle(ctx, bar); err != nil {
			slog.Error("candle upsert failed",
				slog.String("symbol", bar.Symbol),
				slog.Int64("bucket", bar.BucketStart),
				slog.Any("error", err))
		}
	}
}
