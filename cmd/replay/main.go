// Command replay runs a recorded event database through a fresh
// pipeline and prints the resulting processing statistics. Because
// replay shares the live code path, the printed state matches what the
// recording run computed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"microflow/backtest"
	"microflow/internal/app"
	"microflow/internal/infra"
)

func main() {
	dbPath := flag.String("db", "", "path to a recorded events.db (required)")
	symbol := flag.String("symbol", "", "symbol to attribute replayed events to (defaults to first configured)")
	configPath := flag.String("config", "", "config file (defaults to standard lookup)")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -db <events.db> [-symbol SYM] [-config path]")
		os.Exit(2)
	}

	path := *configPath
	if path == "" {
		path = infra.ResolveConfigPath()
	}
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(infra.NewLogger(cfg))
	infra.PrintBanner(cfg, "REPLAY")

	sym := *symbol
	if sym == "" {
		sym = cfg.Feed.Symbols[0]
	}

	// No store and no sink: replay recomputes state, it does not
	// re-persist it.
	pipeline, err := app.NewPipeline(cfg, sym, nil, nil)
	if err != nil {
		slog.Error("Failed to build pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	replayer, err := backtest.NewReplayer(*dbPath)
	if err != nil {
		slog.Error("Failed to open event database", slog.Any("error", err))
		os.Exit(1)
	}
	defer replayer.Close()

	if err := replayer.RunReplay(context.Background(), pipeline); err != nil {
		slog.Error("Replay failed", slog.Any("error", err))
		os.Exit(1)
	}

	stats, err := json.MarshalIndent(pipeline.GetStats(), "", "  ")
	if err != nil {
		slog.Error("Failed to marshal stats", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Println(string(stats))
}
