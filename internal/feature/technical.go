package feature

import "gonum.org/v1/gonum/stat"

// Technical indicators computed over a price slice (oldest first).
// All return neutral defaults under insufficient history so the
// per-update feature cadence is never broken.

// RSI is the Relative Strength Index over the given period.
// Returns 50 (neutral) with fewer than period+1 prices, 100 when there
// are no losses in the window.
func RSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50
	}

	var gain, loss float64
	start := len(prices) - period
	for i := start; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// MACDSignal returns the signal line of the MACD(fast, slow, signal)
// indicator, 0 with fewer than slow prices.
func MACDSignal(prices []float64, fast, slow, signal int) float64 {
	if len(prices) < slow {
		return 0
	}

	emaFast := emaSeries(prices, fast)
	emaSlow := emaSeries(prices, slow)
	macd := make([]float64, len(prices))
	for i := range prices {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	sig := emaSeries(macd, signal)
	return sig[len(sig)-1]
}

// BollingerPosition locates the latest price within its Bollinger
// bands: 0 at the lower band, 1 at the upper, clamped to [0,1].
// Returns 0.5 (mid-band) under insufficient history or zero width.
func BollingerPosition(prices []float64, period int, numStd float64) float64 {
	if len(prices) < period {
		return 0.5
	}

	window := prices[len(prices)-period:]
	mean, std := stat.MeanStdDev(window, nil)
	width := 2 * numStd * std
	if width == 0 {
		return 0.5
	}

	lower := mean - numStd*std
	pos := (prices[len(prices)-1] - lower) / width
	if pos < 0 {
		return 0
	}
	if pos > 1 {
		return 1
	}
	return pos
}

// emaSeries computes the exponential moving average with smoothing
// 2/(span+1), seeded at the first observation.
func emaSeries(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
