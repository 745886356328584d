package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
	"github.com/hashimhashmi02/Exness-be/pkg/quant"
)

// Store persists accounts, positions and candles in SQLite. The schema is
// created up front, before any worker starts, so later writes never race
// table provisioning.
//
// The pool is capped at one connection: the process is the only writer and a
// single connection keeps every transaction strictly serialized, which the
// conditional close relies on.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and provisions the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			balance_cents INTEGER NOT NULL,
			created_at    INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS positions (
			id            TEXT PRIMARY KEY,
			account_id    TEXT NOT NULL REFERENCES accounts(id),
			symbol        TEXT NOT NULL,
			side          TEXT NOT NULL,
			margin_cents  INTEGER NOT NULL,
			leverage      INTEGER NOT NULL,
			entry_price   INTEGER NOT NULL,
			stop_loss     INTEGER NOT NULL DEFAULT 0,
			take_profit   INTEGER NOT NULL DEFAULT 0,
			status        TEXT NOT NULL,
			opened_at     INTEGER NOT NULL,
			close_price   INTEGER NOT NULL DEFAULT 0,
			pnl_cents     INTEGER NOT NULL DEFAULT 0,
			closed_at     INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_account ON positions(account_id);`,
		`CREATE TABLE IF NOT EXISTS candles (
			symbol       TEXT NOT NULL,
			interval     TEXT NOT NULL,
			bucket_start INTEGER NOT NULL,
			open         INTEGER NOT NULL,
			high         INTEGER NOT NULL,
			low          INTEGER NOT NULL,
			close        INTEGER NOT NULL,
			volume_qty   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, interval, bucket_start)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAccount inserts an account if it does not exist yet. Idempotent, so
// seeding on every start is safe.
func (s *Store) CreateAccount(ctx context.Context, id string, balanceCents int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, balance_cents, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, balanceCents, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Account loads an account by id.
func (s *Store) Account(ctx context.Context, id string) (domain.Account, error) {
	var a domain.Account
	var createdMs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, balance_cents, created_at FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.BalanceCents, &createdMs)
	if err == sql.ErrNoRows {
		return domain.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	a.CreatedAt = time.UnixMilli(createdMs)
	return a, nil
}

// OpenPosition debits the margin and creates the position as one
// transaction. If the balance cannot cover the margin nothing is applied and
// ErrInsufficientFunds is returned.
func (s *Store) OpenPosition(ctx context.Context, p domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("open position: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents - ?
		 WHERE id = ? AND balance_cents >= ?`,
		p.MarginCents, p.AccountID, p.MarginCents)
	if err != nil {
		return fmt.Errorf("debit margin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit margin: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = ?)`, p.AccountID).
			Scan(&exists); err != nil {
			return fmt.Errorf("debit margin: %w", err)
		}
		if !exists {
			return fmt.Errorf("account %s: %w", p.AccountID, domain.ErrNotFound)
		}
		return fmt.Errorf("margin %d: %w", p.MarginCents, domain.ErrInsufficientFunds)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO positions
		 (id, account_id, symbol, side, margin_cents, leverage, entry_price,
		  stop_loss, take_profit, status, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AccountID, p.Symbol, string(p.Side), p.MarginCents, p.Leverage,
		int64(p.EntryPrice), int64(p.StopLoss), int64(p.TakeProfit),
		string(p.Status), p.OpenedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}

	return tx.Commit()
}

// ClosePosition transitions a position OPEN -> CLOSED and credits the owner
// with creditCents (margin plus pnl) in one transaction. The transition is
// conditioned on the row still being OPEN at commit: the guard is part of
// the UPDATE itself, so of two racing closers exactly one sees a row
// affected; the other gets ErrAlreadyClosed and no wallet change.
func (s *Store) ClosePosition(ctx context.Context, positionID string, closePrice quant.Price, pnlCents, creditCents int64, closedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE positions
		 SET status = ?, close_price = ?, pnl_cents = ?, closed_at = ?
		 WHERE id = ? AND status = ?`,
		string(domain.StatusClosed), int64(closePrice), pnlCents,
		closedAt.UnixMilli(), positionID, string(domain.StatusOpen))
	if err != nil {
		return fmt.Errorf("transition position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition position: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM positions WHERE id = ?)`, positionID).
			Scan(&exists); err != nil {
			return fmt.Errorf("transition position: %w", err)
		}
		if !exists {
			return fmt.Errorf("position %s: %w", positionID, domain.ErrNotFound)
		}
		return fmt.Errorf("position %s: %w", positionID, domain.ErrAlreadyClosed)
	}

	var accountID string
	if err := tx.QueryRowContext(ctx,
		`SELECT account_id FROM positions WHERE id = ?`, positionID).
		Scan(&accountID); err != nil {
		return fmt.Errorf("close position: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ?`,
		creditCents, accountID); err != nil {
		return fmt.Errorf("credit settlement: %w", err)
	}

	return tx.Commit()
}

const positionColumns = `id, account_id, symbol, side, margin_cents, leverage,
	entry_price, stop_loss, take_profit, status, opened_at, close_price,
	pnl_cents, closed_at`

func scanPosition(row interface{ Scan(...any) error }) (domain.Position, error) {
	var p domain.Position
	var side, status string
	var entry, sl, tp, closePrice, openedMs, closedMs int64
	err := row.Scan(&p.ID, &p.AccountID, &p.Symbol, &side, &p.MarginCents,
		&p.Leverage, &entry, &sl, &tp, &status, &openedMs, &closePrice,
		&p.PnLCents, &closedMs)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.Status(status)
	p.EntryPrice = quant.Price(entry)
	p.StopLoss = quant.Price(sl)
	p.TakeProfit = quant.Price(tp)
	p.ClosePrice = quant.Price(closePrice)
	p.OpenedAt = time.UnixMilli(openedMs)
	if closedMs > 0 {
		p.ClosedAt = time.UnixMilli(closedMs)
	}
	return p, nil
}

// Position loads one position by id.
func (s *Store) Position(ctx context.Context, id string) (domain.Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return domain.Position{}, fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("load position: %w", err)
	}
	return p, nil
}

// OpenPositions loads every OPEN position, oldest first.
func (s *Store) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE status = ? ORDER BY opened_at ASC, id ASC`,
		string(domain.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// PositionsByAccount lists an account's positions, newest first.
func (s *Store) PositionsByAccount(ctx context.Context, accountID string) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE account_id = ? ORDER BY opened_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func collectPositions(rows *sql.Rows) ([]domain.Position, error) {
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return out, nil
}

// UpsertCandle writes a bar, overwriting an existing one for the same
// (symbol, interval, bucket).
func (s *Store) UpsertCandle(ctx context.Context, c domain.Candle) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO candles (symbol, interval, bucket_start, open, high, low, close, volume_qty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(symbol, interval, bucket_start) DO UPDATE SET
		   open = excluded.open, high = excluded.high, low = excluded.low,
		   close = excluded.close, volume_qty = excluded.volume_qty`,
		c.Symbol, c.Interval, c.BucketStart, int64(c.Open), int64(c.High),
		int64(c.Low), int64(c.Close), c.VolumeQty)
	if err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}
	return nil
}

// LastCandleStart returns the newest stored bucket for (symbol, interval).
func (s *Store) LastCandleStart(ctx context.Context, symbol, interval string) (int64, bool, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(bucket_start) FROM candles WHERE symbol = ? AND interval = ?`,
		symbol, interval).Scan(&last)
	if err != nil {
		return 0, false, fmt.Errorf("last candle: %w", err)
	}
	if !last.Valid {
		return 0, false, nil
	}
	return last.Int64, true, nil
}

// RecentCandles returns up to limit most recent bars in ascending bucket
// order.
func (s *Store) RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, interval, bucket_start, open, high, low, close, volume_qty
		 FROM candles WHERE symbol = ? AND interval = ?
		 ORDER BY bucket_start DESC LIMIT ?`,
		symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("recent candles: %w", err)
	}
	defer rows.Close()

	out, err := collectCandles(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CandlesRange returns bars within [fromMs, toMs] ascending; a zero toMs
// means no upper bound.
func (s *Store) CandlesRange(ctx context.Context, symbol, interval string, fromMs, toMs int64) ([]domain.Candle, error) {
	if toMs == 0 {
		toMs = int64(1) << 62
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, interval, bucket_start, open, high, low, close, volume_qty
		 FROM candles
		 WHERE symbol = ? AND interval = ? AND bucket_start >= ? AND bucket_start <= ?
		 ORDER BY bucket_start ASC`,
		symbol, interval, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("candles range: %w", err)
	}
	defer rows.Close()
	return collectCandles(rows)
}

func collectCandles(rows *sql.Rows) ([]domain.Candle, error) {
	var out []domain.Candle
	for rows.Next() {
		var c domain.Candle
		var o, h, l, cl int64
		if err := rows.Scan(&c.Symbol, &c.Interval, &c.BucketStart, &o, &h, &l, &cl, &c.VolumeQty); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Open = quant.Price(o)
		c.High = quant.Price(h)
		c.Low = quant.Price(l)
		c.Close = quant.Price(cl)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	return out, nil
}
