package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
	"github.com/hashimhashmi02/Exness-be/pkg/quant"
)

type sinkRecorder struct {
	mu    sync.Mutex
	bars  []domain.Candle
	fail  int // fail the first N upserts
	calls int
}

func (r *sinkRecorder) UpsertCandle(_ context.Context, c domain.Candle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.fail {
		return errors.New("storage unavailable")
	}
	r.bars = append(r.bars, c)
	return nil
}

func (r *sinkRecorder) flushed() []domain.Candle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Candle, len(r.bars))
	copy(out, r.bars)
	return out
}

// ts builds an epoch-ms timestamp at 10:MM:SS on an arbitrary day.
func ts(min, sec int) int64 {
	return time.Date(2025, 6, 1, 10, min, sec, 0, time.UTC).UnixMilli()
}

func TestMinuteBucket(t *testing.T) {
	base := ts(0, 0)
	assert.Equal(t, base, MinuteBucket(ts(0, 0)))
	assert.Equal(t, base, MinuteBucket(ts(0, 30)))
	assert.Equal(t, base, MinuteBucket(ts(0, 59)))
	assert.Equal(t, ts(1, 0), MinuteBucket(ts(1, 0)))
}

func TestCandleBuilder_SameBucketAggregates(t *testing.T) {
	sink := &sinkRecorder{}
	b := NewCandleBuilder(sink, 16)

	b.OnTick(domain.Tick{Symbol: "SOLUSDT", Price: 1000000, Qty: 10, TsMs: ts(0, 0)})
	b.OnTick(domain.Tick{Symbol: "SOLUSDT", Price: 1012000, Qty: 20, TsMs: ts(0, 30)})
	b.OnTick(domain.Tick{Symbol: "SOLUSDT", Price: 996000, Qty: 5, TsMs: ts(0, 59)})

	bar, ok := b.OpenBar("SOLUSDT")
	require.True(t, ok)
	assert.Equal(t, ts(0, 0), bar.BucketStart)
	assert.Equal(t, quant.Price(1000000), bar.Open)
	assert.Equal(t, quant.Price(1012000), bar.High)
	assert.Equal(t, quant.Price(996000), bar.Low)
	assert.Equal(t, quant.Price(996000), bar.Close)
	assert.Equal(t, int64(35), bar.VolumeQty)
	assert.Empty(t, sink.flushed(), "no flush inside one bucket")
}

func TestCandleBuilder_RolloverFlushesPriorBar(t *testing.T) {
	sink := &sinkRecorder{}
	b := NewCandleBuilder(sink, 16)
	b.Start(context.Background())

	b.OnTick(domain.Tick{Symbol: "SOLUSDT", Price: 1000000, TsMs: ts(0, 0)})
	b.OnTick(domain.Tick{Symbol: "SOLUSDT", Price: 1005000, TsMs: ts(0, 59)})
	b.OnTick(domain.Tick{Symbol: "SOLUSDT", Price: 1001000, TsMs: ts(1, 0)})

	bar, ok := b.OpenBar("SOLUSDT")
	require.True(t, ok)
	assert.Equal(t, ts(1, 0), bar.BucketStart)
	assert.Equal(t, quant.Price(1001000), bar.Open)

	b.Stop()

	flushed := sink.flushed()
	require.Len(t, flushed, 2, "completed bar plus the final open bar on Stop")
	first := flushed[0]
	assert.Equal(t, ts(0, 0), first.BucketStart)
	assert.Equal(t, quant.Price(1000000), first.Open)
	assert.Equal(t, quant.Price(1005000), first.Close)
	assert.GreaterOrEqual(t, first.High, first.Open)
	assert.LessOrEqual(t, first.Low, first.Close)
}

func TestCandleBuilder_PerSymbolBars(t *testing.T) {
	sink := &sinkRecorder{}
	b := NewCandleBuilder(sink, 16)

	b.OnTick(domain.Tick{Symbol: "SOLUSDT", Price: 1000000, TsMs: ts(0, 10)})
	b.OnTick(domain.Tick{Symbol: "ETHUSDT", Price: 31000000, TsMs: ts(0, 20)})

	sol, ok := b.OpenBar("SOLUSDT")
	require.True(t, ok)
	eth, ok := b.OpenBar("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, quant.Price(1000000), sol.Close)
	assert.Equal(t, quant.Price(31000000), eth.Close)
}

func TestCandleBuilder_StorageErrorDropsBarOnly(t *testing.T) {
	sink := &sinkRecorder{fail: 1}
	b := NewCandleBuilder(sink, 16)
	b.Start(context.Background())

	// Two rollovers: the first flush fails, the second must still land.
	b.OnTick(domain.Tick{Symbol: "SOLUSDT", Price: 1000000, TsMs: ts(0, 0)})
	b.OnTick(domain.Tick{Symbol: "SOLUSDT", Price: 1001000, TsMs: ts(1, 0)})
	b.OnTick(domain.Tick{Symbol: "SOLUSDT", Price: 1002000, TsMs: ts(2, 0)})
	b.Stop()

	flushed := sink.flushed()
	require.Len(t, flushed, 2, "failed bar dropped, rest persisted")
	assert.Equal(t, ts(1, 0), flushed[0].BucketStart)
	assert.Equal(t, ts(2, 0), flushed[1].BucketStart)
}
