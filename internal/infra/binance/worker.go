// Package binance ingests the Binance combined stream and turns trade
// prints and partial-depth snapshots into pipeline events.
package binance

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"microflow/internal/domain"
	"microflow/internal/event"
	"microflow/internal/infra"
	"microflow/internal/metrics"
	"microflow/pkg/quant"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	defaultWSURL = "wss://stream.binance.com:9443/stream"
)

// streamMessage is the combined-stream envelope. Subscribe acks carry
// no stream field and are ignored.
type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// aggTrade is an aggregated trade print. Prices and quantities arrive
// as strings and are parsed with decimal to avoid float round-trips.
type aggTrade struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"` // ms
}

// bookTicker is the best bid/ask stream. Used only to stamp quote
// context onto trades, never emitted as its own event.
type bookTicker struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

// depthUpdate is a partial book snapshot (top N levels, best first).
type depthUpdate struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

type quote struct {
	bid float64
	ask float64
}

// Worker handles the Binance WebSocket connection using BaseWSWorker.
type Worker struct {
	base    *infra.BaseWSWorker
	url     string
	symbols []string
	inbox   chan<- event.Event
	seq     *uint64

	mu     sync.RWMutex
	quotes map[string]quote
}

// NewWorker creates a new Binance gateway worker. seq is the shared
// ingestion counter; pass it pre-advanced past the recovered WAL so
// sequence numbers continue where the last run stopped.
func NewWorker(url string, symbols []string, inbox chan<- event.Event, seq *uint64) *Worker {
	if url == "" {
		url = defaultWSURL
	}
	w := &Worker{
		url:     url,
		symbols: symbols,
		inbox:   inbox,
		seq:     seq,
		quotes:  make(map[string]quote),
	}
	w.base = infra.NewBaseWSWorker(w)
	return w
}

// ConfigureBreaker forwards breaker limits to the transport. Must be
// called before Connect.
func (w *Worker) ConfigureBreaker(cfg infra.CircuitBreakerConfig) {
	w.base.ConfigureBreaker(cfg)
}

// ID returns the worker identifier.
func (w *Worker) ID() string { return "BINANCE" }

// GetURL returns the combined-stream endpoint.
func (w *Worker) GetURL() string { return w.url }

// Connect starts the WebSocket connection.
func (w *Worker) Connect(ctx context.Context) error {
	w.base.Start(ctx)
	return nil
}

// Disconnect terminates the connection.
func (w *Worker) Disconnect() {
	w.base.Stop()
}

// OnConnect subscribes to the trade, quote and depth streams. One
// frame per symbol, paced by the shared subscribe limiter.
func (w *Worker) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	for i, s := range w.symbols {
		sym := strings.ToLower(s)
		sub := map[string]interface{}{
			"method": "SUBSCRIBE",
			"params": []string{
				sym + "@aggTrade",
				sym + "@bookTicker",
				sym + "@depth10@100ms",
			},
			"id": i + 1,
		}
		b, _ := json.Marshal(sub)

		infra.GetSubscribeLimiter().Wait()
		if err := w.base.Write(websocket.TextMessage, b); err != nil {
			return err
		}
	}
	return nil
}

// OnMessage routes combined-stream frames by stream suffix.
func (w *Worker) OnMessage(ctx context.Context, msg []byte) {
	var env streamMessage
	if err := json.Unmarshal(msg, &env); err != nil || env.Stream == "" {
		// Subscribe acks and malformed frames are not data.
		return
	}

	switch {
	case strings.HasSuffix(env.Stream, "@aggTrade"):
		w.handleTrade(env.Data)
	case strings.HasSuffix(env.Stream, "@bookTicker"):
		w.handleBookTicker(env.Data)
	case strings.Contains(env.Stream, "@depth"):
		w.handleDepth(env.Stream, env.Data)
	}
}

// OnPing keeps the connection alive with a protocol-level ping frame.
// Binance answers with a pong that gorilla consumes during ReadMessage.
func (w *Worker) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return w.base.Write(websocket.PingMessage, nil)
}

func (w *Worker) handleTrade(data json.RawMessage) {
	var tr aggTrade
	if err := json.Unmarshal(data, &tr); err != nil || tr.Symbol == "" {
		return
	}

	price, err := decimal.NewFromString(tr.Price)
	if err != nil {
		return
	}
	qty, err := decimal.NewFromString(tr.Quantity)
	if err != nil {
		return
	}

	w.mu.RLock()
	q := w.quotes[tr.Symbol]
	w.mu.RUnlock()

	ev := event.AcquireTickEvent()
	ev.Seq = quant.NextSeq(w.seq)
	ev.Ts = quant.FromMillis(tr.TradeTime)
	ev.Symbol = tr.Symbol
	ev.Tick = domain.Tick{
		Time:   ev.Ts,
		Bid:    q.bid,
		Ask:    q.ask,
		Last:   price.InexactFloat64(),
		Volume: qty.InexactFloat64(),
	}

	select {
	case w.inbox <- ev:
	default:
		// Drop if inbox is full, but release to pool to prevent leak.
		event.ReleaseTickEvent(ev)
		metrics.FeedDroppedTotal.WithLabelValues("aggTrade").Inc()
	}
}

func (w *Worker) handleBookTicker(data json.RawMessage) {
	var bt bookTicker
	if err := json.Unmarshal(data, &bt); err != nil || bt.Symbol == "" {
		return
	}

	bid, err := decimal.NewFromString(bt.BidPrice)
	if err != nil {
		return
	}
	ask, err := decimal.NewFromString(bt.AskPrice)
	if err != nil {
		return
	}

	w.mu.Lock()
	w.quotes[bt.Symbol] = quote{bid: bid.InexactFloat64(), ask: ask.InexactFloat64()}
	w.mu.Unlock()
}

func (w *Worker) handleDepth(stream string, data json.RawMessage) {
	var du depthUpdate
	if err := json.Unmarshal(data, &du); err != nil {
		return
	}

	// Partial depth frames carry no symbol; the stream name does.
	symbol := strings.ToUpper(strings.SplitN(stream, "@", 2)[0])

	book := &domain.BookSnapshot{
		Symbol: symbol,
		// Partial depth has no exchange timestamp, stamp on arrival.
		Time: quant.TimeStamp(time.Now().UnixMicro()),
		Bids: parseLevels(du.Bids),
		Asks: parseLevels(du.Asks),
	}
	if len(book.Bids) == 0 && len(book.Asks) == 0 {
		return
	}

	ev := &event.BookEvent{
		BaseEvent: event.BaseEvent{Seq: quant.NextSeq(w.seq), Ts: book.Time},
		Book:      book,
	}

	select {
	case w.inbox <- ev:
	default:
		metrics.FeedDroppedTotal.WithLabelValues("depth").Inc()
	}
}

// parseLevels converts ["price","qty"] pairs, preserving the best-first
// ordering of the feed. Levels that fail to parse are skipped.
func parseLevels(raw [][2]string) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			continue
		}
		vol, err := decimal.NewFromString(pair[1])
		if err != nil {
			continue
		}
		levels = append(levels, domain.BookLevel{
			Price:  price.InexactFloat64(),
			Volume: vol.InexactFloat64(),
		})
	}
	return levels
}
