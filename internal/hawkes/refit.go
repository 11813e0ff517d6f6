package hawkes

import (
	"context"
	"log/slog"
	"time"
)

// Refitter periodically re-estimates the order-flow parameters in a
// background task, decoupled from the online intensity-query path.
// The engine publishes results by atomic snapshot swap, so queries
// never observe a partially-updated parameter set.
type Refitter struct {
	engine   *OrderFlow
	method   FitMethod
	interval time.Duration

	// onRefit, when set, receives the per-dimension statuses after
	// each cycle (metrics hook).
	onRefit func([]FitStatus)
}

// NewRefitter schedules refits of engine every interval.
func NewRefitter(engine *OrderFlow, method FitMethod, interval time.Duration, onRefit func([]FitStatus)) *Refitter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Refitter{engine: engine, method: method, interval: interval, onRefit: onRefit}
}

// Run blocks until ctx is cancelled, refitting on each tick. Intended
// to run in its own goroutine.
func (r *Refitter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("hawkes refitter started",
		slog.String("method", r.method.String()),
		slog.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			slog.Info("hawkes refitter stopping")
			return
		case <-ticker.C:
			r.refitOnce()
		}
	}
}

func (r *Refitter) refitOnce() {
	start := time.Now()
	now := float64(time.Now().UnixMicro()) / 1e6
	statuses := r.engine.Refit(r.method, now)

	converged := 0
	for _, s := range statuses {
		if s.Converged {
			converged++
		}
	}
	slog.Info("hawkes refit cycle complete",
		slog.Int("converged", converged),
		slog.Int("dimensions", len(statuses)),
		slog.Duration("took", time.Since(start)))

	if r.onRefit != nil {
		r.onRefit(statuses)
	}
}
