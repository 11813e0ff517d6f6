package feature

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// KyleLambda measures price impact per unit volume, 0 when volume is 0.
func KyleLambda(priceImpact, volume float64) float64 {
	if volume == 0 {
		return 0
	}
	return priceImpact / volume
}

// AmihudIlliquidity is the mean of |return| / volume over paired
// observations. Pairs with non-positive volume are skipped; mismatched
// lengths or no valid pairs yield 0.
func AmihudIlliquidity(returns, volumes []float64) float64 {
	if len(returns) != len(volumes) || len(returns) == 0 {
		return 0
	}

	var sum float64
	var n int
	for i, r := range returns {
		if volumes[i] > 0 {
			sum += math.Abs(r) / volumes[i]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// RollMeasure estimates the effective spread from the first-order
// autocovariance of consecutive price changes: 2*sqrt(-cov) when the
// covariance is negative. A non-negative covariance means the bid/ask
// bounce model is violated and the measure is undefined, so 0 is
// returned rather than a negative estimate.
func RollMeasure(prices []float64) float64 {
	if len(prices) < 3 {
		return 0
	}

	changes := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		changes[i-1] = prices[i] - prices[i-1]
	}
	if len(changes) < 2 {
		return 0
	}

	cov := stat.Covariance(changes[:len(changes)-1], changes[1:], nil)
	if cov >= 0 {
		return 0
	}
	return 2 * math.Sqrt(-cov)
}
