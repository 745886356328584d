package trading

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
	"github.com/hashimhashmi02/Exness-be/internal/market"
	"github.com/hashimhashmi02/Exness-be/internal/storage"
	"github.com/hashimhashmi02/Exness-be/pkg/quant"
)

// Watcher is the risk engine loop: on a fixed interval it re-evaluates
// every OPEN position's stop-loss/take-profit against the current quote and
// closes the ones that triggered. Quotes are read once per symbol per pass.
// A close that loses the race against a manual close is a no-op.
type Watcher struct {
	svc      *Service
	store    *storage.Store
	book     *market.PriceBook
	interval time.Duration
}

func NewWatcher(svc *Service, store *storage.Store, book *market.PriceBook, interval time.Duration) *Watcher {
	return &Watcher{svc: svc, store: store, book: book, interval: interval}
}

// Run evaluates until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Evaluate(ctx)
		}
	}
}

// Evaluate runs one watcher pass. Exported so tests and callers can drive
// it without the timer.
func (w *Watcher) Evaluate(ctx context.Context) {
	open, err := w.store.OpenPositions(ctx)
	if err != nil {
		slog.Error("risk watcher load failed", slog.Any("error", err))
		return
	}
	if len(open) == 0 {
		return
	}

	// One quote per distinct symbol; symbols without a mark are skipped
	// this pass rather than priced synthetically.
	quotes := make(map[string]quant.Quote)
	for _, pos := range open {
		if _, ok := quotes[pos.Symbol]; ok {
			continue
		}
		if mark, ok := w.book.Get(pos.Symbol); ok {
			quotes[pos.Symbol] = quant.QuoteAt(mark, w.svc.cfg.SpreadBps)
		}
	}

	for _, pos := range open {
		q, ok := quotes[pos.Symbol]
		if !ok {
			continue
		}
		reason, hit := triggered(pos, q)
		if !hit {
			continue
		}

		res, err := w.svc.ForceClose(ctx, pos.ID)
		switch {
		case err == nil:
			slog.Info("position auto-closed",
				slog.String("position", pos.ID),
				slog.String("symbol", pos.Symbol),
				slog.String("reason", reason),
				slog.Int64("pnl_cents", res.PnLCents))
		case errors.Is(err, domain.ErrAlreadyClosed) || errors.Is(err, domain.ErrNotFound):
			// Raced with a manual close; nothing to do.
		case errors.Is(err, domain.ErrPriceUnavailable):
			// Mark vanished between evaluation and close; retry next pass.
		default:
			slog.Error("triggered close failed",
				slog.String("position", pos.ID), slog.Any("error", err))
		}
	}
}

// triggered tells whether the position's stop or target is hit at the quote
// it would actually close at: a long exits at Sell, a short at Buy. Stop and
// target are each optional.
func triggered(p domain.Position, q quant.Quote) (string, bool) {
	if p.IsLong() {
		if p.StopLoss > 0 && q.Sell <= p.StopLoss {
			return "stop_loss", true
		}
		if p.TakeProfit > 0 && q.Sell >= p.TakeProfit {
			return "take_profit", true
		}
		return "", false
	}
	if p.StopLoss > 0 && q.Buy >= p.StopLoss {
		return "stop_loss", true
	}
	if p.TakeProfit > 0 && q.Buy <= p.TakeProfit {
		return "take_profit", true
	}
	return "", false
}
