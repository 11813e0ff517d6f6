package engine

import (
	"context"
	"reflect"
	"testing"

	"microflow/internal/bars"
	"microflow/internal/domain"
	"microflow/internal/event"
	"microflow/internal/feature"
	"microflow/internal/hawkes"
	"microflow/internal/storage"
	"microflow/pkg/quant"
)

// collector is a test sink capturing everything the pipeline emits.
type collector struct {
	features []*domain.FeatureSet
	bars     []domain.Bar
}

func (c *collector) OnFeatures(fs *domain.FeatureSet) { c.features = append(c.features, fs) }
func (c *collector) OnBar(b domain.Bar)               { c.bars = append(c.bars, b) }

func newTestPipeline(t *testing.T, store *storage.Store, sink Sink) *Pipeline {
	t.Helper()
	asm, err := feature.NewAssembler(feature.AssemblerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	builder := bars.NewBuilder(bars.Thresholds{Ticks: 2})
	of := hawkes.NewOrderFlow(hawkes.OrderFlowConfig{Kernel: hawkes.ExponentialKernel()})
	return NewPipeline(100, "BTCUSDT", store, asm, builder, of, sink)
}

func tickEvent(seq uint64, ts int64, price, volume float64) *event.TickEvent {
	return &event.TickEvent{
		BaseEvent: event.BaseEvent{Seq: seq, Ts: quant.TimeStamp(ts)},
		Symbol:    "BTCUSDT",
		Tick: domain.Tick{
			Time: quant.TimeStamp(ts),
			Bid:  price - 0.5, Ask: price + 0.5,
			Last: price, Volume: volume,
		},
	}
}

func bookEvent(seq uint64, ts int64, bidVol, askVol float64) *event.BookEvent {
	return &event.BookEvent{
		BaseEvent: event.BaseEvent{Seq: seq, Ts: quant.TimeStamp(ts)},
		Book: &domain.BookSnapshot{
			Symbol: "BTCUSDT",
			Time:   quant.TimeStamp(ts),
			Bids:   []domain.BookLevel{{Price: 100, Volume: bidVol}},
			Asks:   []domain.BookLevel{{Price: 101, Volume: askVol}},
		},
	}
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(t.TempDir() + "/pipeline.db")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPipeline_Replay_EmptyWAL(t *testing.T) {
	store := newTestStore(t)
	p := newTestPipeline(t, store, nil)

	if err := p.RecoverFromWAL(context.Background()); err != nil {
		t.Fatalf("RecoverFromWAL failed on empty WAL: %v", err)
	}
	if p.GetNextSeq() != 1 {
		t.Errorf("expected nextSeq=1, got %d", p.GetNextSeq())
	}
}

// TestPipeline_Replay_Deterministic verifies that replaying the WAL
// through a fresh pipeline reproduces the exact live outputs.
func TestPipeline_Replay_Deterministic(t *testing.T) {
	store := newTestStore(t)

	live := &collector{}
	p1 := newTestPipeline(t, store, live)

	events := []event.Event{
		tickEvent(1, 1_000_000, 100.5, 1),
		bookEvent(2, 1_100_000, 10, 15),
		tickEvent(3, 1_200_000, 100.6, 2),
		bookEvent(4, 1_300_000, 12, 14),
		tickEvent(5, 1_400_000, 100.4, 1.5),
		bookEvent(6, 1_500_000, 20, 9),
	}
	for _, ev := range events {
		p1.processEvent(ev)
	}

	if len(live.features) != 3 {
		t.Fatalf("live features = %d, want 3", len(live.features))
	}

	replayed := &collector{}
	p2 := newTestPipeline(t, store, replayed)
	if err := p2.RecoverFromWAL(context.Background()); err != nil {
		t.Fatalf("RecoverFromWAL failed: %v", err)
	}

	if p1.GetNextSeq() != p2.GetNextSeq() {
		t.Errorf("nextSeq mismatch: live=%d, replayed=%d", p1.GetNextSeq(), p2.GetNextSeq())
	}
	if len(replayed.features) != len(live.features) {
		t.Fatalf("feature count mismatch: live=%d, replayed=%d",
			len(live.features), len(replayed.features))
	}
	for i := range live.features {
		if !reflect.DeepEqual(live.features[i].Vector(), replayed.features[i].Vector()) {
			t.Errorf("feature vector %d differs between live and replay", i)
		}
	}
	if !reflect.DeepEqual(live.bars, replayed.bars) {
		t.Errorf("bars differ between live and replay:\n%v\n%v", live.bars, replayed.bars)
	}
}

// A WAL written while the feed dropped events carries the gaps the
// live run tolerated. Recovery must tolerate them too.
func TestPipeline_Replay_GappedWAL(t *testing.T) {
	store := newTestStore(t)

	p1 := newTestPipeline(t, store, nil)
	p1.processEvent(tickEvent(1, 1_000_000, 100, 1))
	p1.processEvent(tickEvent(3, 1_100_000, 101, 1)) // inbox drop left a hole

	p2 := newTestPipeline(t, store, nil)
	if err := p2.RecoverFromWAL(context.Background()); err != nil {
		t.Fatalf("RecoverFromWAL failed: %v", err)
	}

	if p2.GetNextSeq() != 4 {
		t.Errorf("nextSeq = %d, want 4", p2.GetNextSeq())
	}
	stats := p2.GetStats()
	if stats.TicksProcessed != 2 {
		t.Errorf("ticks = %d, want 2", stats.TicksProcessed)
	}
	if stats.GapsTolerated != 1 {
		t.Errorf("gaps = %d, want 1", stats.GapsTolerated)
	}
}

func TestPipeline_SequenceGapPolicy(t *testing.T) {
	t.Run("small gap tolerated", func(t *testing.T) {
		p := newTestPipeline(t, nil, nil)
		p.processEvent(tickEvent(1, 1_000_000, 100, 1))
		p.processEvent(tickEvent(5, 2_000_000, 101, 1)) // gap of 4

		stats := p.GetStats()
		if stats.GapsTolerated != 1 {
			t.Errorf("gaps = %d, want 1", stats.GapsTolerated)
		}
		if stats.TicksProcessed != 2 {
			t.Errorf("ticks = %d, want 2", stats.TicksProcessed)
		}
		if p.GetNextSeq() != 6 {
			t.Errorf("nextSeq = %d, want fast-forward to 6", p.GetNextSeq())
		}
	})

	t.Run("duplicate skipped", func(t *testing.T) {
		p := newTestPipeline(t, nil, nil)
		p.processEvent(tickEvent(1, 1_000_000, 100, 1))
		p.processEvent(tickEvent(1, 1_000_000, 100, 1)) // duplicate

		stats := p.GetStats()
		if stats.TicksProcessed != 1 {
			t.Errorf("ticks = %d, want duplicate dropped", stats.TicksProcessed)
		}
		if p.GetNextSeq() != 2 {
			t.Errorf("nextSeq = %d, want 2", p.GetNextSeq())
		}
	})

	t.Run("large gap halts", func(t *testing.T) {
		p := newTestPipeline(t, nil, nil)
		p.processEvent(tickEvent(1, 1_000_000, 100, 1))

		defer func() {
			if recover() == nil {
				t.Error("expected panic on large sequence gap")
			}
		}()
		p.processEvent(tickEvent(100, 2_000_000, 101, 1))
	})
}

func TestPipeline_CrossedBookDropped(t *testing.T) {
	sink := &collector{}
	p := newTestPipeline(t, nil, sink)

	p.processEvent(bookEvent(1, 1_000_000, 10, 15))

	crossed := bookEvent(2, 1_100_000, 10, 15)
	crossed.Book.Bids[0].Price = 102 // bid above ask
	p.processEvent(crossed)

	stats := p.GetStats()
	if stats.CrossedBooks != 1 {
		t.Errorf("crossed = %d, want 1", stats.CrossedBooks)
	}
	// Only the good snapshot produced features.
	if len(sink.features) != 1 {
		t.Fatalf("features = %d, want 1", len(sink.features))
	}

	// After the drop, delta state restarts: the next snapshot's OFI is
	// a first observation again.
	p.processEvent(bookEvent(3, 1_200_000, 50, 15))
	if got := sink.features[len(sink.features)-1].OFI1; got != 0 {
		t.Errorf("OFI1 = %v, want 0 after delta reset", got)
	}
}

func TestPipeline_EmitsBars(t *testing.T) {
	sink := &collector{}
	p := newTestPipeline(t, nil, sink) // tick-bar threshold 2

	p.processEvent(tickEvent(1, 1_000_000, 100, 1))
	p.processEvent(tickEvent(2, 1_100_000, 101, 2))

	if len(sink.bars) != 1 {
		t.Fatalf("bars = %d, want 1", len(sink.bars))
	}
	bar := sink.bars[0]
	if bar.Kind != domain.TickBar || bar.TickCount != 2 || bar.Volume != 3 {
		t.Errorf("bar mismatch: %+v", bar)
	}
	if p.GetStats().BarsEmitted != 1 {
		t.Errorf("stats.BarsEmitted = %d, want 1", p.GetStats().BarsEmitted)
	}
}

func TestPipeline_HaltEventLogged(t *testing.T) {
	p := newTestPipeline(t, nil, nil)
	p.processEvent(&event.HaltEvent{
		BaseEvent: event.BaseEvent{Seq: 1, Ts: 1},
		Reason:    "operator stop",
	})
	if p.GetNextSeq() != 2 {
		t.Errorf("nextSeq = %d, want halt event consumed", p.GetNextSeq())
	}
}
