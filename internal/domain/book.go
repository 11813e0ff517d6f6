package domain

import "microflow/pkg/quant"

// BookLevel is a single price level on one side of the book.
type BookLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Orders int     `json:"orders"`
}

// BookSnapshot is a point-in-time view of the limit order book.
// Invariant: Bids are non-increasing in price, Asks non-decreasing,
// best level first. Derived values (mid, spread, micro-price) are
// computed on demand, never stored, so they cannot go stale.
type BookSnapshot struct {
	Symbol string          `json:"symbol"`
	Time   quant.TimeStamp `json:"time"`
	Bids   []BookLevel     `json:"bids"`
	Asks   []BookLevel     `json:"asks"`
}

// BestBid returns the top-of-book bid price, 0 if the side is empty.
// Callers must treat 0 as "unknown", not as a valid price.
func (b *BookSnapshot) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the top-of-book ask price, 0 if the side is empty.
func (b *BookSnapshot) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Spread returns best_ask - best_bid, 0 if either side is empty.
func (b *BookSnapshot) Spread() float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// Mid returns the arithmetic mid price, 0 if either side is empty.
func (b *BookSnapshot) Mid() float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// MicroPrice returns the volume-weighted mid, biased toward the side
// with less resting volume. Falls back to Mid when top-of-book volume
// is zero.
func (b *BookSnapshot) MicroPrice() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return b.Mid()
	}
	bidVol := b.Bids[0].Volume
	askVol := b.Asks[0].Volume
	total := bidVol + askVol
	if total == 0 {
		return b.Mid()
	}
	return (b.BestBid()*askVol + b.BestAsk()*bidVol) / total
}

// Crossed reports whether best_bid >= best_ask while both sides are
// non-empty. A crossed book is a data-quality fault in the feed, not a
// valid state; the pipeline logs it and skips delta-based updates.
func (b *BookSnapshot) Crossed() bool {
	bid, ask := b.BestBid(), b.BestAsk()
	return bid > 0 && ask > 0 && bid >= ask
}

// Depth returns the cumulative volume of the first n levels on each side.
func (b *BookSnapshot) Depth(n int) (bidDepth, askDepth float64) {
	for i := 0; i < n && i < len(b.Bids); i++ {
		bidDepth += b.Bids[i].Volume
	}
	for i := 0; i < n && i < len(b.Asks); i++ {
		askDepth += b.Asks[i].Volume
	}
	return bidDepth, askDepth
}
