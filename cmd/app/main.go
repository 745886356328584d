package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashimhashmi02/Exness-be/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 4. Candle pipeline before the feed, so no tick ever finds the
	// aggregator stopped.
	bootstrap.Candles.Start(ctx)
	defer bootstrap.Candles.Stop()

	// 5. Market feed (mark cache, candles and hub all hang off its ticks)
	bootstrap.Feed.Start(ctx)
	defer bootstrap.Feed.Stop()
	slog.InfoContext(ctx, "✅ Market feed started",
		slog.Int("symbols", len(bootstrap.Config.Market.Symbols)))

	// 6. Candle history backfill loop
	go bootstrap.Backfil.Run(ctx)
	slog.InfoContext(ctx, "✅ Candle backfill started")

	// 7. Risk watcher
	go bootstrap.Watcher.Run(ctx)
	slog.InfoContext(ctx, "✅ Risk watcher started")

	// 8. Subscriber fan-out hub + WebSocket endpoint
	go bootstrap.Hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", bootstrap.Hub)

	server := &http.Server{
		Addr:    bootstrap.Config.Stream.ListenAddr,
		Handler: mux,
	}
	go func() {
		slog.Info("✅ Stream endpoint listening",
			slog.String("addr", server.Addr), slog.String("path", "/ws"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Stream server failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ Simulator fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Stream server shutdown", slog.Any("error", err))
	}
}
