package binance

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"microflow/internal/event"
)

func newTestWorker(inboxSize int) (*Worker, chan event.Event, *uint64) {
	inbox := make(chan event.Event, inboxSize)
	var seq uint64
	w := NewWorker("", []string{"BTCUSDT"}, inbox, &seq)
	return w, inbox, &seq
}

func envelope(t *testing.T, stream string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	msg, err := json.Marshal(map[string]interface{}{
		"stream": stream,
		"data":   json.RawMessage(raw),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return msg
}

func TestWorker_TradeParsing(t *testing.T) {
	worker, inbox, _ := newTestWorker(10)
	ctx := context.Background()

	// Quote context first, so the trade carries bid/ask.
	worker.OnMessage(ctx, envelope(t, "btcusdt@bookTicker", map[string]interface{}{
		"s": "BTCUSDT",
		"b": "50000.10",
		"a": "50000.50",
	}))

	worker.OnMessage(ctx, envelope(t, "btcusdt@aggTrade", map[string]interface{}{
		"e": "aggTrade",
		"s": "BTCUSDT",
		"p": "50000.25",
		"q": "0.5",
		"T": int64(1704067200000),
	}))

	select {
	case received := <-inbox:
		te, ok := received.(*event.TickEvent)
		if !ok {
			t.Fatalf("expected TickEvent, got %T", received)
		}
		if te.Seq != 1 {
			t.Errorf("expected seq 1, got %d", te.Seq)
		}
		if te.Symbol != "BTCUSDT" {
			t.Errorf("expected symbol BTCUSDT, got %s", te.Symbol)
		}
		if te.Tick.Last != 50000.25 {
			t.Errorf("expected last 50000.25, got %v", te.Tick.Last)
		}
		if te.Tick.Bid != 50000.10 || te.Tick.Ask != 50000.50 {
			t.Errorf("quote not stamped: bid=%v ask=%v", te.Tick.Bid, te.Tick.Ask)
		}
		if te.Tick.Volume != 0.5 {
			t.Errorf("expected volume 0.5, got %v", te.Tick.Volume)
		}
		// 1704067200000 ms to micros
		if int64(te.Ts) != 1704067200000*1000 {
			t.Errorf("timestamp not converted to micros: %d", te.Ts)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no event received")
	}
}

func TestWorker_DepthParsing(t *testing.T) {
	worker, inbox, _ := newTestWorker(10)

	worker.OnMessage(context.Background(), envelope(t, "btcusdt@depth10@100ms", map[string]interface{}{
		"lastUpdateId": 12345,
		"bids":         [][2]string{{"50000.00", "1.5"}, {"49999.50", "2.0"}},
		"asks":         [][2]string{{"50000.50", "1.0"}, {"50001.00", "3.0"}},
	}))

	select {
	case received := <-inbox:
		be, ok := received.(*event.BookEvent)
		if !ok {
			t.Fatalf("expected BookEvent, got %T", received)
		}
		if be.Book.Symbol != "BTCUSDT" {
			t.Errorf("expected symbol from stream name, got %s", be.Book.Symbol)
		}
		if got := be.Book.BestBid(); got != 50000.00 {
			t.Errorf("expected best bid 50000.00, got %v", got)
		}
		if got := be.Book.BestAsk(); got != 50000.50 {
			t.Errorf("expected best ask 50000.50, got %v", got)
		}
		if len(be.Book.Bids) != 2 || len(be.Book.Asks) != 2 {
			t.Errorf("expected 2 levels per side, got %d/%d", len(be.Book.Bids), len(be.Book.Asks))
		}
		if be.Book.Bids[1].Volume != 2.0 {
			t.Errorf("expected second bid volume 2.0, got %v", be.Book.Bids[1].Volume)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no event received")
	}
}

func TestWorker_IgnoresAcksAndMalformed(t *testing.T) {
	worker, inbox, seq := newTestWorker(10)
	ctx := context.Background()

	// Subscribe ack has no stream field.
	worker.OnMessage(ctx, []byte(`{"result":null,"id":1}`))
	// Garbage.
	worker.OnMessage(ctx, []byte(`not json`))
	// Trade with unparseable price.
	worker.OnMessage(ctx, envelope(t, "btcusdt@aggTrade", map[string]interface{}{
		"e": "aggTrade", "s": "BTCUSDT", "p": "abc", "q": "1", "T": int64(1),
	}))
	// Empty depth frame.
	worker.OnMessage(ctx, envelope(t, "btcusdt@depth10@100ms", map[string]interface{}{
		"lastUpdateId": 1,
	}))

	select {
	case ev := <-inbox:
		t.Errorf("unexpected event emitted: %T", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if *seq != 0 {
		t.Errorf("sequence counter advanced on ignored frames: %d", *seq)
	}
}

func TestWorker_InboxFullDropsWithoutBlocking(t *testing.T) {
	worker, inbox, _ := newTestWorker(1)
	ctx := context.Background()

	trade := envelope(t, "btcusdt@aggTrade", map[string]interface{}{
		"e": "aggTrade", "s": "BTCUSDT", "p": "100", "q": "1", "T": int64(1704067200000),
	})

	done := make(chan struct{})
	go func() {
		worker.OnMessage(ctx, trade)
		worker.OnMessage(ctx, trade) // inbox full, must not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnMessage blocked on a full inbox")
	}

	if len(inbox) != 1 {
		t.Errorf("expected exactly one buffered event, got %d", len(inbox))
	}
}
