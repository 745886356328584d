package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hashimhashmi02/Exness-be/internal/domain"
	"github.com/hashimhashmi02/Exness-be/internal/infra"
	"github.com/hashimhashmi02/Exness-be/internal/infra/binance"
	"github.com/hashimhashmi02/Exness-be/internal/market"
	"github.com/hashimhashmi02/Exness-be/internal/storage"
	"github.com/hashimhashmi02/Exness-be/internal/stream"
	"github.com/hashimhashmi02/Exness-be/internal/trading"
)

// Bootstrap builds the whole simulator: config, store, market plumbing and
// the trading core, wired but not yet running. main starts the long-lived
// loops and owns their shutdown order.
type Bootstrap struct {
	Config *infra.Config
	Store  *storage.Store

	Book    *market.PriceBook
	Candles *market.CandleBuilder
	Feed    *binance.Feed
	Backfil *market.Backfiller
	Hub     *stream.Hub

	Service *trading.Service
	Watcher *trading.Watcher
	Auth    *trading.StaticAuthenticator

	// DemoToken authenticates as the seeded demo account.
	DemoToken string

	unlock func()
}

func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config, opens the store and constructs every component.
// Nothing is running yet when it returns.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	slog.Info("🚀 Bootstrapping trading simulator...")

	// 1. Config: optional file, defaults otherwise. Env still overrides.
	cfgPath := infra.ResolveConfigPath()
	cfg, err := infra.LoadConfig(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		cfg = infra.DefaultConfig()
		slog.Info("no config file, using defaults", slog.String("checked", cfgPath))
	}
	b.Config = cfg

	// 2. Logger.
	slog.SetDefault(infra.NewLogger(cfg))
	infra.PrintBanner(cfg)

	// 3. Workspace and single-instance lock. The store is a single-writer
	// sqlite file; two processes on it would fight.
	workDir := infra.WorkspaceDir()
	if err := infra.EnsureDir(workDir); err != nil {
		return fmt.Errorf("failed to create workspace dir: %w", err)
	}
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	dbPath := cfg.Storage.Path
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workDir, dbPath)
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Store initialized (WAL-mode)", slog.String("path", dbPath))

	// 4. Seed the demo account and issue its session token.
	if err := store.CreateAccount(ctx, cfg.Trading.DemoAccountID, cfg.Trading.DemoBalance); err != nil {
		return fmt.Errorf("failed to seed demo account: %w", err)
	}
	b.Auth = trading.NewStaticAuthenticator()
	b.DemoToken = uuid.NewString()
	b.Auth.Grant(b.DemoToken, cfg.Trading.DemoAccountID)
	slog.Info("✅ Demo account ready",
		slog.String("account", cfg.Trading.DemoAccountID),
		slog.String("token", b.DemoToken))

	// 5. Market plumbing: price cache, candle aggregation, feed, backfill.
	b.Book = market.NewPriceBook()
	b.Candles = market.NewCandleBuilder(store, 256)

	b.Feed = binance.NewFeed(cfg.Feed.WSURL, cfg.Market.Symbols, cfg.Market.PriceDecimals)
	rest := binance.NewRestClient(cfg.Feed.RestURL, cfg.Market.PriceDecimals)
	b.Backfil = market.NewBackfiller(rest, store, cfg.Market.Symbols,
		time.Duration(cfg.Feed.BackfillIntervalMS)*time.Millisecond)

	// 6. Fan-out hub and trading core.
	b.Hub = stream.NewHub(b.Book, stream.Config{
		Symbols:       cfg.Market.Symbols,
		SpreadBps:     cfg.Market.SpreadBps,
		PriceDecimals: cfg.Market.PriceDecimals,
		Heartbeat:     time.Duration(cfg.Stream.HeartbeatMS) * time.Millisecond,
		PingInterval:  time.Duration(cfg.Stream.PingIntervalMS) * time.Millisecond,
	})

	b.Service = trading.NewService(store, b.Book, trading.Config{
		Symbols:       cfg.Market.Symbols,
		SpreadBps:     cfg.Market.SpreadBps,
		PriceDecimals: cfg.Market.PriceDecimals,
		Leverages:     cfg.Trading.Leverages,
	})
	b.Watcher = trading.NewWatcher(b.Service, store, b.Book,
		time.Duration(cfg.Trading.WatchIntervalMS)*time.Millisecond)

	// 7. Every feed tick updates the mark, extends the open bar and wakes
	// the hub.
	b.Feed.OnTick(func(t domain.Tick) {
		b.Book.Set(t.Symbol, t.Price)
		b.Candles.OnTick(t)
		b.Hub.Broadcast()
	})

	return nil
}

// Close releases resources acquired by Initialize, in reverse order.
func (b *Bootstrap) Close() {
	if b.Store != nil {
		b.Store.Close()
	}
	if b.unlock != nil {
		b.unlock()
	}
}
