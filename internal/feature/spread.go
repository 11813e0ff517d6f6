package feature

// RelativeSpread is (ask - bid) / mid, 0 when mid is 0.
func RelativeSpread(bid, ask float64) float64 {
	mid := (bid + ask) / 2
	if mid == 0 {
		return 0
	}
	return (ask - bid) / mid
}

// EffectiveSpread is 2 * direction * (trade_price - mid_price).
// direction is +1 for a buy, -1 for a sell.
func EffectiveSpread(tradePrice, midPrice float64, direction int) float64 {
	return 2 * float64(direction) * (tradePrice - midPrice)
}

// RealizedSpread is the effective-spread formula against a future mid:
// the cost that remains after the price impact dissipates.
func RealizedSpread(tradePrice, futureMidPrice float64, direction int) float64 {
	return 2 * float64(direction) * (tradePrice - futureMidPrice)
}
