package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"microflow/internal/app"
	"microflow/internal/infra"
	"microflow/internal/metrics"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	cfg := bootstrap.Config
	infra.PrintBanner(cfg, "LIVE")

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Metrics endpoint
	if cfg.Metrics.Addr != "" {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		slog.Info("Metrics server started", slog.String("addr", cfg.Metrics.Addr))
	}

	// 5. Per-symbol runtimes: pipeline (hotpath), gateway, refitter
	var runtimes []*app.SymbolRuntime
	for _, symbol := range cfg.Feed.Symbols {
		rt, err := bootstrap.BuildRuntime(symbol, app.LogSink{})
		if err != nil {
			slog.Error("Failed to build runtime",
				slog.String("symbol", symbol), slog.Any("error", err))
			os.Exit(1)
		}
		runtimes = append(runtimes, rt)

		go rt.Pipeline.Run(ctx)
		go rt.Refitter.Run(ctx)

		if err := rt.Worker.Connect(ctx); err != nil {
			slog.Error("Failed to connect feed",
				slog.String("symbol", symbol), slog.Any("error", err))
		}
		slog.InfoContext(ctx, "Symbol runtime started", slog.String("symbol", symbol))
	}

	slog.InfoContext(ctx, "microflow fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()
	slog.InfoContext(ctx, "Shutting down gracefully...")

	for _, rt := range runtimes {
		if err := rt.SaveSnapshot(cfg.Store.SnapshotKeep); err != nil {
			slog.Error("Snapshot save failed",
				slog.String("symbol", rt.Symbol), slog.Any("error", err))
		}
		rt.Close()
	}
}
