package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hashimhashmi02/Exness-be/internal/market"
	"github.com/hashimhashmi02/Exness-be/pkg/quant"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 16
)

// Config carries the hub's quoting and keepalive parameters.
type Config struct {
	Symbols       []string
	SpreadBps     int64
	PriceDecimals int32
	Heartbeat     time.Duration
	PingInterval  time.Duration
}

// Hub fans quoted prices out to WebSocket subscribers. Each subscriber
// declares a symbol filter at connect time, gets an immediate snapshot,
// and from then on receives a frame on every feed tick plus a heartbeat
// frame when the market is idle. A slow subscriber loses frames, never
// stalls the hub.
type Hub struct {
	book *market.PriceBook
	cfg  Config

	register   chan *subscriber
	unregister chan *subscriber
	wake       chan struct{}
	done       chan struct{}

	subs     map[*subscriber]bool
	upgrader websocket.Upgrader
}

type subscriber struct {
	conn    *websocket.Conn
	symbols map[string]bool
	send    chan []byte
}

func NewHub(book *market.PriceBook, cfg Config) *Hub {
	return &Hub{
		book:       book,
		cfg:        cfg,
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		subs:       make(map[*subscriber]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Broadcast pokes the hub to push fresh quotes. Calls coalesce: a pending
// wake absorbs any number of further ones, so the feed can call this on
// every tick without queueing work.
func (h *Hub) Broadcast() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Run owns the subscriber set until ctx is cancelled. All joins, leaves
// and pushes are serialized here.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for sub := range h.subs {
				close(sub.send)
				delete(h.subs, sub)
			}
			return
		case sub := <-h.register:
			h.subs[sub] = true
			if frame, ok := h.frameFor(sub, h.book.Snapshot()); ok {
				sub.send <- frame
			}
			slog.Debug("stream subscriber joined", slog.Int("total", len(h.subs)))
		case sub := <-h.unregister:
			if h.subs[sub] {
				delete(h.subs, sub)
				close(sub.send)
			}
			slog.Debug("stream subscriber left", slog.Int("total", len(h.subs)))
		case <-h.wake:
			h.push()
		case <-heartbeat.C:
			h.push()
		}
	}
}

func (h *Hub) push() {
	if len(h.subs) == 0 {
		return
	}
	marks := h.book.Snapshot()
	for sub := range h.subs {
		frame, ok := h.frameFor(sub, marks)
		if !ok {
			continue
		}
		select {
		case sub.send <- frame:
		default:
			// Subscriber's queue is full; it will catch up on the next
			// frame or be evicted by its own keepalive.
		}
	}
}

// frameFor builds the subscriber's filtered frame from the given marks.
// Symbols the feed has not priced yet are omitted, and a frame with no
// updates is not sent at all.
func (h *Hub) frameFor(sub *subscriber, marks map[string]quant.Price) ([]byte, bool) {
	symbols := make([]string, 0, len(sub.symbols))
	for sym := range sub.symbols {
		if _, ok := marks[sym]; ok {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return nil, false
	}
	sort.Strings(symbols)

	updates := make([]PriceUpdate, 0, len(symbols))
	for _, sym := range symbols {
		q := quant.QuoteAt(marks[sym], h.cfg.SpreadBps)
		updates = append(updates, PriceUpdate{
			// Clients see the base asset name, not the full pair.
			Symbol:    strings.TrimSuffix(sym, "USDT"),
			BuyPrice:  int64(q.Buy),
			SellPrice: int64(q.Sell),
			Decimals:  h.cfg.PriceDecimals,
		})
	}

	frame, err := json.Marshal(Frame{PriceUpdates: updates})
	if err != nil {
		slog.Error("stream frame marshal failed", slog.Any("error", err))
		return nil, false
	}
	return frame, true
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
// The symbol filter comes from the symbols query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream upgrade failed", slog.Any("error", err))
		return
	}

	sub := &subscriber{
		conn:    conn,
		symbols: ParseFilter(r.URL.Query().Get("symbols"), h.cfg.Symbols),
		send:    make(chan []byte, sendQueueSize),
	}

	select {
	case h.register <- sub:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(sub)
	go h.readPump(sub)
}

// writePump is the connection's only writer. It drains the send queue and
// owns the keepalive pings.
func (h *Hub) writePump(sub *subscriber) {
	pings := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		pings.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sub.send:
			if !ok {
				sub.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-pings.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages and enforces liveness: a subscriber
// that stops answering pings misses its read deadline and is evicted.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		select {
		case h.unregister <- sub:
		case <-h.done:
		}
		sub.conn.Close()
	}()

	pongWait := 2 * h.cfg.PingInterval
	sub.conn.SetReadLimit(512)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}
