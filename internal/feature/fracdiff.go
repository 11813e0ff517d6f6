package feature

import (
	"fmt"
	"math"
)

// DefaultFracDiffMaxTerms bounds the weight vector when the threshold
// alone would not truncate it.
const DefaultFracDiffMaxTerms = 100

// FracDiff is a fixed-weight causal FIR filter implementing fractional
// differentiation (Lopez de Prado): stationarity-preserving-memory
// transform of a price or volume series. The weight vector is a pure
// function of (d, threshold, maxTerms) and is computed once.
type FracDiff struct {
	d         float64
	threshold float64
	weights   []float64 // reversed: oldest-observation weight first
}

// NewFracDiff derives the weight vector for order d (0 < d < 1).
// Weights follow w_0 = 1, w_k = -w_{k-1} * (d-k+1) / k, truncated the
// first time |w_k| < threshold and bounded at maxTerms terms.
func NewFracDiff(d, threshold float64, maxTerms int) (*FracDiff, error) {
	if d <= 0 || d >= 1 {
		return nil, fmt.Errorf("fracdiff: order d must be in (0,1), got %v", d)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("fracdiff: threshold must be positive, got %v", threshold)
	}
	if maxTerms <= 0 {
		maxTerms = DefaultFracDiffMaxTerms
	}

	w := make([]float64, 1, 16)
	w[0] = 1
	for k := 1; k < maxTerms; k++ {
		wk := -w[len(w)-1] * (d - float64(k) + 1) / float64(k)
		if math.Abs(wk) < threshold {
			break
		}
		w = append(w, wk)
	}

	// Reverse so the filter applies causally: oldest sample first.
	for i, j := 0, len(w)-1; i < j; i, j = i+1, j-1 {
		w[i], w[j] = w[j], w[i]
	}

	return &FracDiff{d: d, threshold: threshold, weights: w}, nil
}

// Weights returns a copy of the derived weight vector.
func (f *FracDiff) Weights() []float64 {
	return append([]float64(nil), f.weights...)
}

// Window is the filter length; Transform output is shorter than its
// input by Window-1.
func (f *FracDiff) Window() int { return len(f.weights) }

// Transform applies the filter in valid-mode convolution: output index
// 0 corresponds to input index Window-1. The unit weight w_0 multiplies
// the newest sample in each window, so the output stays on the level's
// scale with the fractional memory correction subtracted. Returns nil
// when the input is shorter than the weight vector.
func (f *FracDiff) Transform(series []float64) []float64 {
	w := f.weights
	if len(series) < len(w) {
		return nil
	}

	out := make([]float64, len(series)-len(w)+1)
	for i := range out {
		var acc float64
		for k, wk := range w {
			acc += wk * series[i+k]
		}
		out[i] = acc
	}
	return out
}

// Latest applies the filter to the tail of the series only, producing
// the newest filtered value. Returns 0 with ok=false when the series is
// shorter than the filter window.
func (f *FracDiff) Latest(series []float64) (float64, bool) {
	w := f.weights
	if len(series) < len(w) {
		return 0, false
	}
	tail := series[len(series)-len(w):]
	var acc float64
	for k, wk := range w {
		acc += wk * tail[k]
	}
	return acc, true
}
