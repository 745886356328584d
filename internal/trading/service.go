package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
	"github.com/hashimhashmi02/Exness-be/internal/market"
	"github.com/hashimhashmi02/Exness-be/internal/storage"
	"github.com/hashimhashmi02/Exness-be/pkg/quant"
	"github.com/hashimhashmi02/Exness-be/pkg/safe"
)

// Config carries the trading parameters shared by the service and watcher.
type Config struct {
	Symbols       []string
	SpreadBps     int64
	PriceDecimals int32
	Leverages     []int
}

// Service owns the position lifecycle: validation, quoting, and the
// transactional open/close handoff to storage. Both the manual request path
// and the risk watcher close through here, so the conditional status guard
// in storage is the single point that serializes racing closes.
type Service struct {
	store *storage.Store
	book  *market.PriceBook
	cfg   Config

	supported map[string]bool
	leverages map[int]bool
}

func NewService(store *storage.Store, book *market.PriceBook, cfg Config) *Service {
	s := &Service{
		store:     store,
		book:      book,
		cfg:       cfg,
		supported: make(map[string]bool, len(cfg.Symbols)),
		leverages: make(map[int]bool, len(cfg.Leverages)),
	}
	for _, sym := range cfg.Symbols {
		s.supported[sym] = true
	}
	for _, l := range cfg.Leverages {
		s.leverages[l] = true
	}
	return s
}

// OpenRequest describes a position to open. StopLoss/TakeProfit are
// optional scaled prices; zero means unset.
type OpenRequest struct {
	Symbol      string
	Side        domain.Side
	MarginCents int64
	Leverage    int
	StopLoss    quant.Price
	TakeProfit  quant.Price
}

// OpenResult reports the created position and the account balance after the
// margin debit.
type OpenResult struct {
	PositionID   string
	EntryPrice   quant.Price
	BalanceCents int64
}

// CloseResult reports the settlement of a close.
type CloseResult struct {
	PositionID   string
	ClosePrice   quant.Price
	PnLCents     int64
	BalanceCents int64
}

// NormalizeSymbol upper-cases an asset or pair name and ensures the USDT
// suffix, so "sol" and "SOLUSDT" address the same instrument.
func NormalizeSymbol(s string) string {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if sym == "" {
		return ""
	}
	return strings.TrimSuffix(sym, "USDT") + "USDT"
}

// Open validates the request, prices the entry at the current quote and
// atomically debits margin and creates the position. No partial state is
// ever left behind: validation failures happen before any mutation and the
// storage half is one transaction.
func (s *Service) Open(ctx context.Context, accountID string, req OpenRequest) (OpenResult, error) {
	sym := NormalizeSymbol(req.Symbol)
	if !s.supported[sym] {
		return OpenResult{}, fmt.Errorf("unsupported symbol %q: %w", req.Symbol, domain.ErrValidation)
	}
	if req.Side != domain.SideLong && req.Side != domain.SideShort {
		return OpenResult{}, fmt.Errorf("unknown side %q: %w", req.Side, domain.ErrValidation)
	}
	if req.MarginCents <= 0 {
		return OpenResult{}, fmt.Errorf("margin must be positive: %w", domain.ErrValidation)
	}
	if !s.leverages[req.Leverage] {
		return OpenResult{}, fmt.Errorf("leverage %d not permitted: %w", req.Leverage, domain.ErrValidation)
	}
	if req.StopLoss < 0 || req.TakeProfit < 0 {
		return OpenResult{}, fmt.Errorf("negative trigger price: %w", domain.ErrValidation)
	}

	mark, ok := s.book.Get(sym)
	if !ok {
		return OpenResult{}, fmt.Errorf("%s: %w", sym, domain.ErrPriceUnavailable)
	}
	q := quant.QuoteAt(mark, s.cfg.SpreadBps)

	entry := q.Buy
	if req.Side == domain.SideShort {
		entry = q.Sell
	}

	if err := validateBracket(req.Side, entry, req.StopLoss, req.TakeProfit); err != nil {
		return OpenResult{}, err
	}

	pos := domain.Position{
		ID:          ulid.Make().String(),
		AccountID:   accountID,
		Symbol:      sym,
		Side:        req.Side,
		MarginCents: req.MarginCents,
		Leverage:    req.Leverage,
		EntryPrice:  entry,
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		Status:      domain.StatusOpen,
		OpenedAt:    time.Now(),
	}
	if err := s.store.OpenPosition(ctx, pos); err != nil {
		return OpenResult{}, err
	}

	acct, err := s.store.Account(ctx, accountID)
	if err != nil {
		return OpenResult{}, err
	}
	return OpenResult{
		PositionID:   pos.ID,
		EntryPrice:   entry,
		BalanceCents: acct.BalanceCents,
	}, nil
}

// validateBracket checks each supplied trigger against the entry: a long
// stops below and targets above, a short the reverse.
func validateBracket(side domain.Side, entry, stopLoss, takeProfit quant.Price) error {
	if side == domain.SideLong {
		if stopLoss > 0 && stopLoss >= entry {
			return fmt.Errorf("long stop-loss %d must be below entry %d: %w", stopLoss, entry, domain.ErrValidation)
		}
		if takeProfit > 0 && takeProfit <= entry {
			return fmt.Errorf("long take-profit %d must be above entry %d: %w", takeProfit, entry, domain.ErrValidation)
		}
		return nil
	}
	if stopLoss > 0 && stopLoss <= entry {
		return fmt.Errorf("short stop-loss %d must be above entry %d: %w", stopLoss, entry, domain.ErrValidation)
	}
	if takeProfit > 0 && takeProfit >= entry {
		return fmt.Errorf("short take-profit %d must be below entry %d: %w", takeProfit, entry, domain.ErrValidation)
	}
	return nil
}

// Close settles a position for its owner: exit at the opposite quote side,
// pnl from the spread model, then the conditional commit in storage. The
// ownership check applies only to this manual path.
func (s *Service) Close(ctx context.Context, accountID, positionID string) (CloseResult, error) {
	return s.close(ctx, accountID, positionID)
}

// ForceClose settles a position regardless of owner. Used by the risk
// watcher's triggered-close path.
func (s *Service) ForceClose(ctx context.Context, positionID string) (CloseResult, error) {
	return s.close(ctx, "", positionID)
}

func (s *Service) close(ctx context.Context, accountID, positionID string) (CloseResult, error) {
	pos, err := s.store.Position(ctx, positionID)
	if err != nil {
		return CloseResult{}, err
	}
	if accountID != "" && pos.AccountID != accountID {
		// Foreign positions are indistinguishable from absent ones.
		return CloseResult{}, fmt.Errorf("position %s: %w", positionID, domain.ErrNotFound)
	}
	if pos.Status == domain.StatusClosed {
		return CloseResult{}, fmt.Errorf("position %s: %w", positionID, domain.ErrAlreadyClosed)
	}

	mark, ok := s.book.Get(pos.Symbol)
	if !ok {
		return CloseResult{}, fmt.Errorf("%s: %w", pos.Symbol, domain.ErrPriceUnavailable)
	}
	q := quant.QuoteAt(mark, s.cfg.SpreadBps)

	exit := q.Sell
	if pos.Side == domain.SideShort {
		exit = q.Buy
	}

	pnl := quant.SettleCents(pos.IsLong(), pos.ExposureCents(), pos.EntryPrice, exit)
	credit := safe.SafeAdd(pos.MarginCents, pnl)

	// The status guard inside ClosePosition decides the race between this
	// close and any concurrent one; losing it costs nothing.
	if err := s.store.ClosePosition(ctx, pos.ID, exit, pnl, credit, time.Now()); err != nil {
		return CloseResult{}, err
	}

	acct, err := s.store.Account(ctx, pos.AccountID)
	if err != nil {
		return CloseResult{}, err
	}
	return CloseResult{
		PositionID:   pos.ID,
		ClosePrice:   exit,
		PnLCents:     pnl,
		BalanceCents: acct.BalanceCents,
	}, nil
}

// Positions lists the account's positions, newest first.
func (s *Service) Positions(ctx context.Context, accountID string) ([]domain.Position, error) {
	return s.store.PositionsByAccount(ctx, accountID)
}

// Balance returns the account's current cash balance in cents.
func (s *Service) Balance(ctx context.Context, accountID string) (int64, error) {
	acct, err := s.store.Account(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acct.BalanceCents, nil
}
