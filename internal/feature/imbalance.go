package feature

import (
	"math"

	"microflow/internal/domain"
)

// SimpleImbalance is (bid_vol - ask_vol) / (bid_vol + ask_vol),
// 0 when the book is empty. Range [-1, 1].
func SimpleImbalance(bidVolume, askVolume float64) float64 {
	total := bidVolume + askVolume
	if total == 0 {
		return 0
	}
	return (bidVolume - askVolume) / total
}

// WeightedImbalance applies an exponential per-level decay
// decay^(level-1) to the volumes before taking the same signed ratio.
// Missing levels contribute 0 to both sides.
func WeightedImbalance(book *domain.BookSnapshot, levels int, decay float64) float64 {
	var bid, ask float64
	for i := 0; i < levels; i++ {
		w := math.Pow(decay, float64(i))
		if i < len(book.Bids) {
			bid += w * book.Bids[i].Volume
		}
		if i < len(book.Asks) {
			ask += w * book.Asks[i].Volume
		}
	}
	return SimpleImbalance(bid, ask)
}

// ImbalanceAdjustedMicroPrice nudges the top-of-book micro price in
// the direction implied by the last trade. A trade printing nearer the
// bid is read as seller-initiated and shifts the estimate down when
// the ask side is heavier; a trade nearer the ask mirrors that with
// the bid side. The shift is at most 1% of the spread. With no trade
// context, or an empty or zero-volume top of book, this degrades to
// the plain micro price.
func ImbalanceAdjustedMicroPrice(book *domain.BookSnapshot, tradePrice float64) float64 {
	micro := book.MicroPrice()
	if tradePrice <= 0 || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return micro
	}

	bid, ask := book.BestBid(), book.BestAsk()
	bidVol, askVol := book.Bids[0].Volume, book.Asks[0].Volume
	total := bidVol + askVol
	if total == 0 {
		return micro
	}

	var adjustment float64
	if math.Abs(tradePrice-bid) < math.Abs(tradePrice-ask) {
		adjustment = -0.01 * (askVol - bidVol) / total
	} else {
		adjustment = 0.01 * (bidVol - askVol) / total
	}
	return micro + adjustment*(ask-bid)
}

// BookPressure weights each level's volume by the inverse of its
// distance from mid, summed per side, then takes the signed ratio.
// Levels sitting exactly at mid contribute 0 (division guard).
func BookPressure(book *domain.BookSnapshot, levels int) float64 {
	mid := book.Mid()
	if mid == 0 {
		return 0
	}

	var bid, ask float64
	for i := 0; i < levels; i++ {
		if i < len(book.Bids) {
			if d := math.Abs(mid - book.Bids[i].Price); d > 0 {
				bid += book.Bids[i].Volume / d
			}
		}
		if i < len(book.Asks) {
			if d := math.Abs(mid - book.Asks[i].Price); d > 0 {
				ask += book.Asks[i].Volume / d
			}
		}
	}
	return SimpleImbalance(bid, ask)
}

// DepthWeightedMicroPrice extends the top-of-book micro price over
// multiple levels: the per-side VWAPs cross-weighted by opposing
// cumulative depth. Falls back to mid when either side has no volume
// in the window.
func DepthWeightedMicroPrice(book *domain.BookSnapshot, levels int) float64 {
	var bidPV, askPV, bidVol, askVol float64
	for i := 0; i < levels; i++ {
		if i < len(book.Bids) {
			bidPV += book.Bids[i].Price * book.Bids[i].Volume
			bidVol += book.Bids[i].Volume
		}
		if i < len(book.Asks) {
			askPV += book.Asks[i].Price * book.Asks[i].Volume
			askVol += book.Asks[i].Volume
		}
	}

	if bidVol == 0 || askVol == 0 {
		return book.Mid()
	}

	avgBid := bidPV / bidVol
	avgAsk := askPV / askVol
	return (avgBid*askVol + avgAsk*bidVol) / (bidVol + askVol)
}
