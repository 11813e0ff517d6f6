package domain

import "microflow/pkg/quant"

// Tick is a single market event as delivered by the data feed.
// Immutable once created; no component mutates a Tick after ingestion.
type Tick struct {
	Time   quant.TimeStamp `json:"time"`
	Bid    float64         `json:"bid"`
	Ask    float64         `json:"ask"`
	Last   float64         `json:"last"`
	Volume float64         `json:"volume"`
	Flags  uint32          `json:"flags"`
}

// Notional returns the dollar value of the tick's trade.
func (t Tick) Notional() float64 {
	return t.Last * t.Volume
}

// IsBuy reports whether the trade printed at or through the ask.
func (t Tick) IsBuy() bool {
	return t.Ask > 0 && t.Last >= t.Ask
}

// IsSell reports whether the trade printed at or through the bid.
func (t Tick) IsSell() bool {
	return t.Bid > 0 && t.Last <= t.Bid
}
