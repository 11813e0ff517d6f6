// Package feature implements the incremental market-microstructure
// calculators: order-flow imbalance, book imbalance and pressure,
// spread and liquidity measures, rolling volatility, fractional
// differentiation, and the technical indicators carried in the
// feature vector.
package feature

import "microflow/internal/domain"

// OFICalculator computes Order Flow Imbalance following Cont et al.
// (2014): the signed net queue-volume change at configurable book
// depths. Stateful: retains the previous snapshot between calls and
// must see book updates in strict timestamp order, exactly once each.
type OFICalculator struct {
	levels []int
	prev   *domain.BookSnapshot
}

// NewOFICalculator configures the depth levels OFI is reported at.
// A nil/empty levels list defaults to {1, 2, 3, 5}.
func NewOFICalculator(levels []int) *OFICalculator {
	if len(levels) == 0 {
		levels = schemaOFILevels
	}
	return &OFICalculator{levels: append([]int(nil), levels...)}
}

// Levels returns the configured depth levels.
func (c *OFICalculator) Levels() []int { return c.levels }

// Reset drops the previous snapshot; the next Calculate call behaves
// like the first observation.
func (c *OFICalculator) Reset() { c.prev = nil }

// Calculate returns OFI(n) for every configured level n.
//
// OFI(n) = sum over i=1..n of (dBid_i - dAsk_i), where the per-level
// delta is the volume change when the price at that level is unchanged,
// and the full current volume when the price level was replaced: a
// level replacement is a regime change, not a queue-volume change, so
// the previous contribution is not subtracted.
//
// The first call returns 0 for every level and only seeds state. The
// current snapshot is always stored for the next call.
func (c *OFICalculator) Calculate(book *domain.BookSnapshot) map[int]float64 {
	out := make(map[int]float64, len(c.levels))

	if c.prev == nil {
		for _, n := range c.levels {
			out[n] = 0
		}
		c.prev = book
		return out
	}

	prev := c.prev
	for _, n := range c.levels {
		var ofi float64
		for i := 0; i < n; i++ {
			ofi += levelDelta(prev.Bids, book.Bids, i)
			ofi -= levelDelta(prev.Asks, book.Asks, i)
		}
		out[n] = ofi
	}

	c.prev = book
	return out
}

// levelDelta computes one side's queue-volume change at depth i.
// Missing levels contribute 0.
func levelDelta(prev, curr []domain.BookLevel, i int) float64 {
	if i >= len(curr) {
		return 0
	}
	if i >= len(prev) || prev[i].Price != curr[i].Price {
		// Price level replaced: treat current size as entirely new.
		return curr[i].Volume
	}
	return curr[i].Volume - prev[i].Volume
}
