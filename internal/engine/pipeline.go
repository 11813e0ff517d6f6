// Package engine runs the single-writer feature pipeline: one
// goroutine consumes the event inbox, updates every stateful
// calculator in deterministic order, and emits feature vectors and
// bars. All calculator state is confined to that goroutine, so the
// hotpath takes no locks.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"microflow/internal/bars"
	"microflow/internal/domain"
	"microflow/internal/event"
	"microflow/internal/feature"
	"microflow/internal/hawkes"
	"microflow/internal/metrics"
	"microflow/internal/storage"
)

// maxToleratedGap is the largest sequence gap absorbed by
// fast-forwarding. Larger gaps mean the feed state is unrecoverable
// and the pipeline halts.
const maxToleratedGap = 10

// Sink receives the pipeline's outputs. Implementations must be fast
// or hand off internally; they run on the hotpath goroutine.
type Sink interface {
	OnFeatures(*domain.FeatureSet)
	OnBar(domain.Bar)
}

// Stats is a point-in-time snapshot of pipeline counters for external
// readers (status endpoints, shutdown logging).
type Stats struct {
	NextSeq         uint64 `json:"next_seq"`
	TicksProcessed  uint64 `json:"ticks_processed"`
	BooksProcessed  uint64 `json:"books_processed"`
	FeaturesEmitted uint64 `json:"features_emitted"`
	BarsEmitted     uint64 `json:"bars_emitted"`
	GapsTolerated   uint64 `json:"gaps_tolerated"`
	CrossedBooks    uint64 `json:"crossed_books"`
}

// Pipeline is the core single-threaded event processor.
type Pipeline struct {
	inbox   chan event.Event
	nextSeq uint64
	store   *storage.Store

	symbol    string
	assembler *feature.Assembler
	builder   *bars.Builder
	orderFlow *hawkes.OrderFlow

	prevBook *domain.BookSnapshot

	sink Sink

	mu    sync.RWMutex // guards stats for external reads only
	stats Stats
}

// NewPipeline wires the calculators into a pipeline. store may be nil
// (no persistence); sink may be nil (no downstream consumer).
func NewPipeline(inboxSize int, symbol string, store *storage.Store,
	assembler *feature.Assembler, builder *bars.Builder,
	orderFlow *hawkes.OrderFlow, sink Sink) *Pipeline {

	p := &Pipeline{
		inbox:     make(chan event.Event, inboxSize),
		nextSeq:   1,
		store:     store,
		symbol:    symbol,
		assembler: assembler,
		builder:   builder,
		orderFlow: orderFlow,
		sink:      sink,
	}
	p.stats.NextSeq = p.nextSeq
	return p
}

// Inbox returns the event channel. External workers send events here.
func (p *Pipeline) Inbox() chan<- event.Event {
	return p.inbox
}

// OrderFlow exposes the Hawkes engine for the background refitter.
func (p *Pipeline) OrderFlow() *hawkes.OrderFlow { return p.orderFlow }

// RecoverFromWAL restores state by replaying all events from WAL
// through the same code path as live processing.
func (p *Pipeline) RecoverFromWAL(ctx context.Context) error {
	if p.store == nil {
		slog.Info("No store configured, starting fresh")
		return nil
	}

	lastSeq, err := p.store.GetLastSeq(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last seq: %w", err)
	}
	if lastSeq == 0 {
		slog.Info("WAL is empty, starting fresh")
		return nil
	}

	events, err := p.store.LoadEvents(ctx, 1)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}

	slog.Info("Replaying events from WAL", slog.Int("count", len(events)))

	for _, ev := range events {
		p.ReplayEvent(ev)
	}

	slog.Info("State recovered from WAL", slog.Uint64("next_seq", p.nextSeq))
	return nil
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (p *Pipeline) Run(ctx context.Context) {
	slog.Info("Pipeline started (single-thread hotpath)",
		slog.String("symbol", p.symbol))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			p.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Pipeline stopping...")
			return
		case ev := <-p.inbox:
			p.processEvent(ev)
			// Tick envelopes are pooled; everything the handlers need
			// was copied out during dispatch.
			if te, ok := ev.(*event.TickEvent); ok {
				event.ReleaseTickEvent(te)
			}
		}
	}
}

// validateSequence checks for gaps. Returns false when the event is a
// duplicate and must be skipped. Gaps within the tolerance window
// fast-forward the expected sequence; larger gaps halt the pipeline.
func (p *Pipeline) validateSequence(evSeq uint64) bool {
	expected := p.nextSeq
	if evSeq == expected {
		return true
	}

	diff := int64(evSeq) - int64(expected)

	if diff < 0 {
		slog.Warn("SEQUENCE_DUPLICATE_IGNORED",
			slog.Uint64("expected", expected), slog.Uint64("got", evSeq))
		return false
	}

	if diff <= maxToleratedGap {
		slog.Warn("SEQUENCE_GAP_TOLERATED",
			slog.Uint64("expected", expected),
			slog.Uint64("got", evSeq),
			slog.Int64("gap", diff))
		metrics.SequenceGapsTotal.Inc()
		p.mu.Lock()
		p.stats.GapsTolerated++
		p.mu.Unlock()
		p.nextSeq = evSeq
		return true
	}

	panic(fmt.Sprintf("SEQUENCE_GAP_FATAL: expected %d, got %d", expected, evSeq))
}

func (p *Pipeline) processEvent(ev event.Event) {
	if !p.validateSequence(ev.GetSeq()) {
		return
	}

	// WAL-first: the event is durable before it mutates state, so
	// replay reconstructs exactly what live processing saw.
	if p.store != nil {
		if err := p.store.SaveEvent(context.Background(), ev); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	p.dispatch(ev)
	p.nextSeq++
	p.setNextSeqStat()
}

// ReplayEvent processes an event synchronously without WAL logging.
// Used exclusively by recovery and the backtest replayer. The WAL
// inherits whatever gaps the live run tolerated when the feed dropped
// events, so replay must apply the same sequence policy as the live
// path or a once-tolerated gap would make the log unrecoverable.
func (p *Pipeline) ReplayEvent(ev event.Event) {
	if !p.validateSequence(ev.GetSeq()) {
		return
	}

	p.dispatch(ev)
	p.nextSeq++
	p.setNextSeqStat()
}

func (p *Pipeline) dispatch(ev event.Event) {
	switch e := ev.(type) {
	case *event.TickEvent:
		metrics.EventsTotal.WithLabelValues("tick").Inc()
		p.handleTick(e)
	case *event.BookEvent:
		metrics.EventsTotal.WithLabelValues("book").Inc()
		p.handleBook(e)
	case *event.HaltEvent:
		slog.Warn("Halt event received", slog.String("reason", e.Reason))
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
}

func (p *Pipeline) handleTick(e *event.TickEvent) {
	t := e.Tick

	p.assembler.OnTick(t)

	if typ, ok := domain.ClassifyTick(t); ok {
		p.orderFlow.Observe(domain.OrderEvent{Time: t.Time, Type: typ})
	}

	closed := p.builder.Update(t)
	for _, bar := range closed {
		p.emitBar(bar)
	}

	p.mu.Lock()
	p.stats.TicksProcessed++
	p.mu.Unlock()
}

func (p *Pipeline) handleBook(e *event.BookEvent) {
	book := e.Book

	p.mu.Lock()
	p.stats.BooksProcessed++
	p.mu.Unlock()

	// A crossed snapshot is corrupt feed state: it breaks the
	// consecutive-pair contract of the delta calculators, so drop it
	// and restart delta state from the next good snapshot.
	if book.Crossed() {
		slog.Warn("Crossed book snapshot dropped",
			slog.String("symbol", book.Symbol),
			slog.Float64("bid", book.BestBid()),
			slog.Float64("ask", book.BestAsk()))
		metrics.CrossedBooksTotal.Inc()
		p.mu.Lock()
		p.stats.CrossedBooks++
		p.mu.Unlock()
		p.assembler.ResetOFI()
		p.prevBook = nil
		return
	}

	if p.prevBook != nil {
		for _, typ := range domain.ClassifyBookDelta(p.prevBook, book) {
			p.orderFlow.Observe(domain.OrderEvent{Time: book.Time, Type: typ})
		}
	}
	p.prevBook = book

	hf := p.orderFlow.FeaturesAt(book.Time.Seconds())
	fs := p.assembler.Assemble(book, hf)

	if p.store != nil {
		if err := p.store.SaveFeatures(context.Background(), fs); err != nil {
			slog.Error("Failed to persist features", slog.Any("error", err))
		}
	}
	if p.sink != nil {
		p.sink.OnFeatures(fs)
	}
	metrics.FeaturesTotal.WithLabelValues(fs.Symbol).Inc()

	p.mu.Lock()
	p.stats.FeaturesEmitted++
	p.mu.Unlock()
}

func (p *Pipeline) emitBar(bar domain.Bar) {
	if p.store != nil {
		if err := p.store.SaveBar(context.Background(), bar); err != nil {
			slog.Error("Failed to persist bar", slog.Any("error", err))
		}
	}
	if p.sink != nil {
		p.sink.OnBar(bar)
	}
	metrics.BarsTotal.WithLabelValues(bar.Kind.String()).Inc()

	p.mu.Lock()
	p.stats.BarsEmitted++
	p.mu.Unlock()
}

func (p *Pipeline) setNextSeqStat() {
	p.mu.Lock()
	p.stats.NextSeq = p.nextSeq
	p.mu.Unlock()
}

// GetNextSeq returns the next expected sequence number (external read).
func (p *Pipeline) GetNextSeq() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats.NextSeq
}

// GetStats returns a snapshot of the pipeline counters (external read).
func (p *Pipeline) GetStats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// DumpState writes the pipeline counters and fitted model parameters
// to a file (for post-mortem).
func (p *Pipeline) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		Stats  Stats                               `json:"stats"`
		Hawkes [domain.NumOrderTypes]hawkes.Params `json:"hawkes_params"`
		Counts [domain.NumOrderTypes]int           `json:"hawkes_event_counts"`
	}{
		Stats:  p.GetStats(),
		Hawkes: p.orderFlow.DiagonalParams(),
		Counts: p.orderFlow.EventCounts(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
