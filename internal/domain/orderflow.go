package domain

import "microflow/pkg/quant"

// OrderType is the closed set of order-flow event classes modeled by
// the Hawkes engine. Six dimensions: market/limit/cancel x buy/sell.
type OrderType uint8

const (
	MarketBuy OrderType = iota
	MarketSell
	LimitBuy
	LimitSell
	CancelBuy
	CancelSell

	NumOrderTypes = 6
)

var orderTypeNames = [NumOrderTypes]string{
	"market_buy", "market_sell",
	"limit_buy", "limit_sell",
	"cancel_buy", "cancel_sell",
}

func (o OrderType) String() string {
	if int(o) < len(orderTypeNames) {
		return orderTypeNames[o]
	}
	return "unknown"
}

// IsBuy reports whether the order type acts on the buy side.
func (o OrderType) IsBuy() bool {
	return o == MarketBuy || o == LimitBuy || o == CancelBuy
}

// OrderEvent is a single type-labeled arrival consumed by the Hawkes
// engine. Within one type the stream is non-decreasing in time.
type OrderEvent struct {
	Time quant.TimeStamp `json:"time"`
	Type OrderType       `json:"type"`
}

// ClassifyTick maps a trade tick to a market order type by comparing
// the print against the prevailing quotes. Returns false for ticks
// that cannot be signed (no trade, or inside the spread).
func ClassifyTick(t Tick) (OrderType, bool) {
	switch {
	case t.IsBuy():
		return MarketBuy, true
	case t.IsSell():
		return MarketSell, true
	default:
		return 0, false
	}
}

// ClassifyBookDelta maps a top-of-book queue change between two
// consecutive snapshots to limit/cancel arrivals. Volume growth at an
// unchanged price is a limit order, shrinkage a cancellation; a price
// change re-anchors the queue and is treated as a fresh limit arrival.
func ClassifyBookDelta(prev, curr *BookSnapshot) []OrderType {
	if prev == nil || curr == nil {
		return nil
	}

	var out []OrderType
	classify := func(prevLv, currLv []BookLevel, grow, shrink OrderType) {
		if len(currLv) == 0 {
			return
		}
		if len(prevLv) == 0 || prevLv[0].Price != currLv[0].Price {
			out = append(out, grow)
			return
		}
		switch d := currLv[0].Volume - prevLv[0].Volume; {
		case d > 0:
			out = append(out, grow)
		case d < 0:
			out = append(out, shrink)
		}
	}

	classify(prev.Bids, curr.Bids, LimitBuy, CancelBuy)
	classify(prev.Asks, curr.Asks, LimitSell, CancelSell)
	return out
}
