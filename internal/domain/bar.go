package domain

import "microflow/pkg/quant"

// BarKind identifies which information trigger produced a bar.
type BarKind uint8

const (
	TickBar BarKind = iota + 1
	VolumeBar
	DollarBar
)

func (k BarKind) String() string {
	switch k {
	case TickBar:
		return "tick"
	case VolumeBar:
		return "volume"
	case DollarBar:
		return "dollar"
	default:
		return "unknown"
	}
}

// Bar is an information-driven OHLCV aggregation of ticks, emitted when
// the accumulator for its kind crosses the configured threshold.
type Bar struct {
	Kind       BarKind         `json:"kind"`
	Time       quant.TimeStamp `json:"time"` // timestamp of the closing tick
	Open       float64         `json:"open"`
	High       float64         `json:"high"`
	Low        float64         `json:"low"`
	Close      float64         `json:"close"`
	Volume     float64         `json:"volume"`
	TickCount  int             `json:"tick_count"`
	BuyVolume  float64         `json:"buy_volume"`
	SellVolume float64         `json:"sell_volume"`
}
