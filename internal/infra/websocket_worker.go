package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState tracks the worker's connection lifecycle.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// WSHandler defines upstream-specific logic for the WSWorker.
type WSHandler interface {
	URL() string
	OnConnect(ctx context.Context, conn *websocket.Conn) error
	OnMessage(ctx context.Context, msg []byte)
	ID() string
}

// WSWorker manages the lifecycle of an upstream WebSocket connection:
// DISCONNECTED -> CONNECTING -> CONNECTED, back to DISCONNECTED on any
// transport error or missed keepalive, then a delayed reconnect. The delay
// floor guarantees the worker never reconnects in a tight loop; consecutive
// failures back the delay off up to MaxReconnectDelay.
type WSWorker struct {
	handler WSHandler
	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	state   atomic.Int32

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	PongWait          time.Duration
}

// NewWSWorker creates a worker around the given handler.
func NewWSWorker(handler WSHandler) *WSWorker {
	return &WSWorker{
		handler:           handler,
		ReconnectDelay:    2 * time.Second,
		MaxReconnectDelay: 60 * time.Second,
		PingInterval:      15 * time.Second,
		PongWait:          60 * time.Second,
	}
}

// Start initiates the connection loop.
func (w *WSWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for its goroutines.
func (w *WSWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

// State returns the current connection state.
func (w *WSWorker) State() ConnState {
	return ConnState(w.state.Load())
}

func (w *WSWorker) setState(s ConnState) {
	w.state.Store(int32(s))
}

func (w *WSWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	defer w.setState(StateDisconnected)
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.setState(StateConnecting)
		if err := w.connect(ctx); err != nil {
			w.setState(StateDisconnected)
			delay := w.reconnectDelay(retry)
			retry++
			slog.Warn("WS connection failed",
				"id", w.handler.ID(), "err", err, "retry", retry, "delay", delay)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0 // reset on successful connect
		w.setState(StateConnected)

		// The ping loop lives exactly as long as this session, so a
		// reconnect never inherits the previous session's keepalive.
		sessCtx, endSession := context.WithCancel(ctx)
		if w.PingInterval > 0 {
			go w.pingLoop(sessCtx)
		}
		w.process(ctx)
		endSession()
		w.setState(StateDisconnected)

		// A dropped CONNECTED session also waits the floor delay before
		// dialing again.
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.ReconnectDelay):
		}
	}
}

// reconnectDelay doubles the floor delay per consecutive failure, capped at
// MaxReconnectDelay.
func (w *WSWorker) reconnectDelay(retry int) time.Duration {
	return CalculateBackoff(w.ReconnectDelay, w.MaxReconnectDelay, retry)
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), nil)
	if err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(w.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.PongWait))
	})

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, conn); err != nil {
		w.close()
		return fmt.Errorf("OnConnect failed: %w", err)
	}

	slog.Info("WS connected", "id", w.handler.ID())
	return nil
}

func (w *WSWorker) process(ctx context.Context) {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return
		}

		// Any frame (data or pong) refreshes the keepalive window; a read
		// past the deadline means the upstream missed the ping response.
		c.SetReadDeadline(time.Now().Add(w.PongWait))
		_, msg, err := c.ReadMessage()
		if err != nil {
			slog.Warn("WS read error", "id", w.handler.ID(), "err", err)
			w.close()
			return
		}

		w.handler.OnMessage(ctx, msg)
	}
}

func (w *WSWorker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			c := w.conn
			w.mu.RUnlock()
			if c == nil {
				return
			}
			w.writeMu.Lock()
			err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			w.writeMu.Unlock()
			if err != nil {
				slog.Warn("WS ping error", "id", w.handler.ID(), "err", err)
				w.close()
				return
			}
		}
	}
}

// Write sends a message over the active connection. Writes are serialized.
func (w *WSWorker) Write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("ws not connected")
	}

	return c.WriteMessage(msgType, data)
}

func (w *WSWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
