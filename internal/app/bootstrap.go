// Package app wires configuration, storage, pipelines and gateways
// into runnable per-symbol units.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"microflow/internal/bars"
	"microflow/internal/engine"
	"microflow/internal/event"
	"microflow/internal/feature"
	"microflow/internal/hawkes"
	"microflow/internal/infra"
	"microflow/internal/infra/binance"
	"microflow/internal/metrics"
	"microflow/internal/storage"

	"github.com/joho/godotenv"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config *infra.Config

	dataDir string
	unlock  func()
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, installs the logger and prepares the
// workspace. Must be called before BuildRuntime.
func (b *Bootstrap) Initialize() error {
	// .env first so MICROFLOW_* overrides are visible to LoadConfig.
	_ = godotenv.Load()

	// Runtime warmup so the first tick burst allocates nothing.
	event.Warmup()

	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	workDir := infra.GetWorkspaceDir()
	if err := infra.EnsureDir(workDir); err != nil {
		return fmt.Errorf("failed to create workspace dir: %w", err)
	}

	// One engine per event database: two processes appending to the
	// same WAL would corrupt the sequence invariant.
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	b.dataDir = cfg.Store.Path
	if !filepath.IsAbs(b.dataDir) {
		b.dataDir = filepath.Join(workDir, b.dataDir)
	}
	if err := infra.EnsureDir(b.dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	slog.Info("Bootstrap complete",
		slog.String("workspace", workDir),
		slog.String("data", b.dataDir))
	return nil
}

// Shutdown releases process-level resources.
func (b *Bootstrap) Shutdown() {
	if b.unlock != nil {
		b.unlock()
	}
}

// DBPath returns the event database path for a symbol.
func (b *Bootstrap) DBPath(symbol string) string {
	return filepath.Join(b.dataDir, strings.ToLower(symbol), "events.db")
}

func (b *Bootstrap) snapshotDir(symbol string) string {
	dir := b.Config.Store.SnapshotDir
	if dir == "" {
		dir = "snapshots"
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(b.dataDir, strings.ToLower(symbol), dir)
	}
	return dir
}

// SymbolRuntime bundles everything one symbol needs: the recovered
// pipeline, its store, the feed gateway and the background refitter.
// Sequence numbers are per symbol, so each runtime owns its counter.
type SymbolRuntime struct {
	Symbol    string
	Pipeline  *engine.Pipeline
	Store     *storage.Store
	Snapshots *storage.SnapshotManager
	Worker    *binance.Worker
	Refitter  *hawkes.Refitter

	seq uint64
}

// BuildRuntime constructs the full per-symbol stack: store, pipeline
// recovered from the WAL, Hawkes warm-start from the latest snapshot,
// feed worker, and refitter.
func (b *Bootstrap) BuildRuntime(symbol string, sink engine.Sink) (*SymbolRuntime, error) {
	cfg := b.Config

	dbPath := b.DBPath(symbol)
	if err := infra.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("failed to create symbol data dir: %w", err)
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store for %s: %w", symbol, err)
	}

	rt := &SymbolRuntime{
		Symbol:    symbol,
		Store:     store,
		Snapshots: storage.NewSnapshotManager(b.snapshotDir(symbol)),
	}

	rt.Pipeline, err = NewPipeline(cfg, symbol, store, sink)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := rt.Pipeline.RecoverFromWAL(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("WAL recovery failed for %s: %w", symbol, err)
	}

	// Warm-start the Hawkes parameters so intensity features are
	// sensible before the first refit completes.
	if snap, err := rt.Snapshots.LoadLatest(); err != nil {
		slog.Warn("Snapshot load failed, starting from defaults",
			slog.String("symbol", symbol), slog.Any("error", err))
	} else if snap != nil {
		rt.Pipeline.OrderFlow().RestoreDiagonal(snap.Diagonal())
	}

	// The gateway continues numbering where the WAL stopped.
	rt.seq = rt.Pipeline.GetNextSeq() - 1
	rt.Worker = binance.NewWorker(cfg.Feed.URL, []string{symbol}, rt.Pipeline.Inbox(), &rt.seq)
	rt.Worker.ConfigureBreaker(infra.CircuitBreakerConfig{
		Name:        symbol + "-feed",
		MaxFailures: cfg.Feed.BreakerFailures,
		Cooloff:     time.Duration(cfg.Feed.BreakerCooloffSec) * time.Second,
	})

	method, err := hawkes.ParseFitMethod(cfg.Hawkes.FitMethod)
	if err != nil {
		store.Close()
		return nil, err
	}
	interval := time.Duration(cfg.Hawkes.RefitIntervalSec) * time.Second
	rt.Refitter = hawkes.NewRefitter(rt.Pipeline.OrderFlow(), method, interval, func(statuses []hawkes.FitStatus) {
		for _, s := range statuses {
			switch {
			case s.Events == 0:
				metrics.RefitsTotal.WithLabelValues("skipped").Inc()
			case s.Converged:
				metrics.RefitsTotal.WithLabelValues("converged").Inc()
			default:
				metrics.RefitsTotal.WithLabelValues("failed").Inc()
			}
		}
	})

	return rt, nil
}

// SaveSnapshot persists the current Hawkes parameters for the next
// warm start and prunes old snapshot files.
func (rt *SymbolRuntime) SaveSnapshot(keep int) error {
	snap := storage.CreateSnapshot(rt.Pipeline.GetNextSeq()-1, rt.Pipeline.OrderFlow().DiagonalParams())
	if err := rt.Snapshots.Save(snap); err != nil {
		return err
	}
	if keep <= 0 {
		keep = 3
	}
	return rt.Snapshots.Cleanup(keep)
}

// Close stops the gateway and releases the store.
func (rt *SymbolRuntime) Close() {
	if rt.Worker != nil {
		rt.Worker.Disconnect()
	}
	if rt.Store != nil {
		rt.Store.Close()
	}
}

// NewPipeline builds a pipeline from config alone. The live path hands
// it a store and the replay CLI passes nil, so a replay run never
// double-writes features or bars.
func NewPipeline(cfg *infra.Config, symbol string, store *storage.Store, sink engine.Sink) (*engine.Pipeline, error) {
	asm, err := feature.NewAssembler(assemblerConfig(cfg))
	if err != nil {
		return nil, err
	}

	builder := bars.NewBuilder(bars.Thresholds{
		Ticks:  cfg.Bars.Ticks,
		Volume: cfg.Bars.Volume,
		Dollar: cfg.Bars.Dollar,
	})

	kernel, err := kernelFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	flow := hawkes.NewOrderFlow(hawkes.OrderFlowConfig{
		Kernel:     kernel,
		HistoryCap: cfg.Hawkes.HistoryCap,
		Baseline:   hawkes.Params{Mu: cfg.Hawkes.Mu, Alpha: cfg.Hawkes.Alpha, Beta: cfg.Hawkes.Beta},
		CrossAlpha: cfg.Hawkes.CrossAlpha,
	})

	return engine.NewPipeline(cfg.Feed.InboxSize, symbol, store, asm, builder, flow, sink), nil
}

func assemblerConfig(cfg *infra.Config) feature.AssemblerConfig {
	f := cfg.Features
	return feature.AssemblerConfig{
		OFILevels:        f.OFILevels,
		ImbalanceLevels:  f.ImbalanceLevels,
		ImbalanceDecay:   f.ImbalanceDecay,
		VolatilityWindow: f.VolatilityWindow,
		Annualization:    f.Annualization,
		BufferSize:       f.BufferSize,

		FracDiffD:         f.FracDiffD,
		FracDiffThreshold: f.FracDiffThreshold,
		FracDiffMaxTerms:  f.FracDiffMaxTerms,

		RSIPeriod:       f.RSIPeriod,
		MACDFast:        f.MACDFast,
		MACDSlow:        f.MACDSlow,
		MACDSignal:      f.MACDSignal,
		BollingerPeriod: f.BollingerPeriod,
		BollingerStd:    f.BollingerStd,
	}
}

func kernelFromConfig(cfg *infra.Config) (hawkes.Kernel, error) {
	kind, err := hawkes.ParseKernel(cfg.Hawkes.Kernel)
	if err != nil {
		return hawkes.Kernel{}, err
	}
	switch kind {
	case hawkes.KernelPowerLaw:
		return hawkes.PowerLawKernel(hawkes.DefaultPowerLawExponent), nil
	case hawkes.KernelExpSum:
		// Two-timescale default: fast decay for burst structure,
		// slow decay for the session-scale tail.
		return hawkes.ExpSumKernel([]float64{0.4, 0.1}, []float64{1.0, 0.05})
	default:
		return hawkes.ExponentialKernel(), nil
	}
}
