// Package backtest replays a recorded event log through the live
// pipeline code path. Replay and live processing share every line of
// feature logic, so a replayed run reproduces the live run exactly.
package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"microflow/internal/engine"
	"microflow/internal/storage"
)

// Replayer streams events out of a recorded store.
type Replayer struct {
	store *storage.Store
}

// NewReplayer opens the event database at dbPath.
func NewReplayer(dbPath string) (*Replayer, error) {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	return &Replayer{store: store}, nil
}

// Close releases the underlying store.
func (r *Replayer) Close() error {
	return r.store.Close()
}

// RunReplay feeds every stored event into the pipeline synchronously,
// in sequence order, starting from seq 1. The pipeline must be fresh:
// replaying into a pipeline that already consumed live events would
// trip its sequence check.
func (r *Replayer) RunReplay(ctx context.Context, p *engine.Pipeline) error {
	events, err := r.store.LoadEvents(ctx, 1)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}

	for _, ev := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		p.ReplayEvent(ev)
	}

	slog.Info("Replay complete",
		slog.Int("events", len(events)),
		slog.Uint64("next_seq", p.GetNextSeq()))
	return nil
}
