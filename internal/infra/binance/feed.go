package binance

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
	"github.com/hashimhashmi02/Exness-be/internal/infra"
	"github.com/hashimhashmi02/Exness-be/pkg/quant"
)

// TickHandler consumes one normalized trade tick.
type TickHandler func(domain.Tick)

// tradeData is the Binance trade stream payload. Prices and quantities are
// decimal strings; they never pass through float64.
type tradeData struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Qty    string `json:"q"`
	TsMs   int64  `json:"T"`
}

// tradeMsg is the combined-stream envelope.
type tradeMsg struct {
	Stream string    `json:"stream"`
	Data   tradeData `json:"data"`
}

// Feed ingests the Binance trade stream for a fixed symbol set and fans
// normalized ticks out to registered consumers. Connection lifecycle
// (reconnect delay, keepalive) is owned by the embedded WSWorker. Malformed
// ticks are dropped, never fatal; a panicking consumer is isolated from the
// rest and from the read loop.
type Feed struct {
	worker   *infra.WSWorker
	baseURL  string
	symbols  []string
	decimals int32

	handlers []TickHandler

	seenMu sync.Mutex
	seen   map[string]struct{}
}

// NewFeed creates a feed for the given upstream base URL (e.g.
// wss://stream.binance.com:9443/stream) and symbol set.
func NewFeed(baseURL string, symbols []string, decimals int32) *Feed {
	f := &Feed{
		baseURL:  baseURL,
		symbols:  symbols,
		decimals: decimals,
		seen:     make(map[string]struct{}),
	}
	f.worker = infra.NewWSWorker(f)
	return f
}

// OnTick registers a consumer. Registration happens before Start; the
// handler list is immutable afterwards.
func (f *Feed) OnTick(h TickHandler) {
	f.handlers = append(f.handlers, h)
}

// Start begins the connection loop.
func (f *Feed) Start(ctx context.Context) {
	f.worker.Start(ctx)
}

// Stop terminates the feed.
func (f *Feed) Stop() {
	f.worker.Stop()
}

// State exposes the underlying connection state.
func (f *Feed) State() infra.ConnState {
	return f.worker.State()
}

// ID returns the worker identifier.
func (f *Feed) ID() string { return "BINANCE" }

// URL builds the combined-stream subscription URL; the symbol set is fixed
// at start, so the subscription rides on the URL and OnConnect sends
// nothing.
func (f *Feed) URL() string {
	streams := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		streams = append(streams, strings.ToLower(s)+"@trade")
	}
	return f.baseURL + "?streams=" + strings.Join(streams, "/")
}

// OnConnect is a no-op: the URL carries the subscription.
func (f *Feed) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	return nil
}

// OnMessage parses one inbound frame and dispatches the tick. Any missing
// field drops the frame silently.
func (f *Feed) OnMessage(ctx context.Context, msg []byte) {
	var env tradeMsg
	if err := json.Unmarshal(msg, &env); err != nil {
		return
	}
	data := env.Data
	if data.Symbol == "" {
		// Some endpoints deliver the payload without the stream envelope.
		if err := json.Unmarshal(msg, &data); err != nil {
			return
		}
	}

	if data.Symbol == "" || data.Price == "" || data.TsMs == 0 {
		return
	}

	price, err := quant.ParsePrice(data.Price, f.decimals)
	if err != nil {
		return
	}
	var qty int64
	if data.Qty != "" {
		if q, err := quant.ParseQty(data.Qty); err == nil {
			qty = q
		}
	}

	f.seenMu.Lock()
	if _, ok := f.seen[data.Symbol]; !ok {
		f.seen[data.Symbol] = struct{}{}
		slog.Info("first trade seen", slog.String("symbol", data.Symbol))
	}
	f.seenMu.Unlock()

	f.dispatch(domain.Tick{Symbol: data.Symbol, Price: price, Qty: qty, TsMs: data.TsMs})
}

func (f *Feed) dispatch(t domain.Tick) {
	for _, h := range f.handlers {
		f.dispatchOne(h, t)
	}
}

// dispatchOne shields the feed and the remaining consumers from a panic in
// one consumer.
func (f *Feed) dispatchOne(h TickHandler, t domain.Tick) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick consumer panicked",
				slog.String("symbol", t.Symbol), slog.Any("panic", r))
		}
	}()
	h(t)
}
