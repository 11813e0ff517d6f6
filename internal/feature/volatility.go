package feature

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// VolatilityTracker keeps a fixed-size rolling window of prices and a
// parallel window of log-returns, updated once per observation.
// Single-writer: updates must arrive in timestamp order.
type VolatilityTracker struct {
	annualization float64

	prices  *ring
	returns *ring
}

// ring is a fixed-capacity drop-oldest buffer.
type ring struct {
	buf   []float64
	head  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// at returns the i-th most recent element (0 = latest).
func (r *ring) at(i int) float64 {
	idx := r.head - 1 - i
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx]
}

// values copies the window contents, oldest first.
func (r *ring) values() []float64 {
	out := make([]float64, r.count)
	for i := 0; i < r.count; i++ {
		out[r.count-1-i] = r.at(i)
	}
	return out
}

// NewVolatilityTracker creates a tracker over the last window prices.
// annualization scales the per-observation stdev to an annual figure
// (e.g. 252*390*60 for one observation per second of trading time).
func NewVolatilityTracker(window int, annualization float64) *VolatilityTracker {
	if window < 2 {
		window = 2
	}
	return &VolatilityTracker{
		annualization: annualization,
		prices:        newRing(window),
		returns:       newRing(window),
	}
}

// Update appends a price and, when a previous price exists, the
// corresponding log-return. Non-positive prices are data-quality
// faults and are ignored rather than poisoning the return series.
func (v *VolatilityTracker) Update(price float64) {
	if price <= 0 {
		return
	}
	if v.prices.count > 0 {
		v.returns.push(math.Log(price / v.prices.at(0)))
	}
	v.prices.push(price)
}

// RealizedVolatility is stdev(log returns) * sqrt(annualization),
// 0 with fewer than 2 returns. The sample estimator (n-1 divisor) is
// used: return windows here are short enough that the bias correction
// matters.
func (v *VolatilityTracker) RealizedVolatility() float64 {
	if v.returns.count < 2 {
		return 0
	}
	return stat.StdDev(v.returns.values(), nil) * math.Sqrt(v.annualization)
}

// PriceVelocity is the last first difference, 0 with fewer than 2 prices.
func (v *VolatilityTracker) PriceVelocity() float64 {
	if v.prices.count < 2 {
		return 0
	}
	return v.prices.at(0) - v.prices.at(1)
}

// PriceAcceleration is the change of velocity, 0 with fewer than 3 prices.
func (v *VolatilityTracker) PriceAcceleration() float64 {
	if v.prices.count < 3 {
		return 0
	}
	v1 := v.prices.at(0) - v.prices.at(1)
	v2 := v.prices.at(1) - v.prices.at(2)
	return v1 - v2
}

// Observations reports how many prices the window currently holds.
func (v *VolatilityTracker) Observations() int { return v.prices.count }

// GarmanKlass estimates volatility from a single OHLC bar. Stateless.
// Returns 0 for degenerate bars (zero open/close, or a negative
// variance estimate).
func (v *VolatilityTracker) GarmanKlass(open, high, low, closePx float64) float64 {
	if open <= 0 || closePx <= 0 || high <= 0 || low <= 0 {
		return 0
	}
	hl := math.Log(high / low)
	co := math.Log(closePx / open)
	variance := 0.5*hl*hl - (2*math.Ln2-1)*co*co
	if variance < 0 {
		return 0
	}
	return math.Sqrt(variance) * math.Sqrt(v.annualization)
}
