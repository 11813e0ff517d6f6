// Package bars aggregates ticks into information-driven OHLCV bars:
// a bar closes when a fixed quantity of information (tick count,
// traded volume, or dollar turnover) has accumulated, not when a clock
// interval elapses.
package bars

import (
	"microflow/internal/domain"
	"microflow/pkg/quant"
)

// Thresholds configures the three independent bar triggers. A zero
// threshold disables that bar series.
type Thresholds struct {
	Ticks  int     `yaml:"ticks"`
	Volume float64 `yaml:"volume"`
	Dollar float64 `yaml:"dollar"`
}

// Builder accumulates ticks into the three bar series. Each trigger
// owns an independent accumulator and tick buffer, so the series are
// independent views over the same tick stream: one tick can close a
// tick bar and a volume bar simultaneously, and resetting one series
// never disturbs another.
//
// Single writer: ticks must arrive in timestamp order, once each.
type Builder struct {
	thresholds Thresholds

	tick   accumulator
	volume accumulator
	dollar accumulator
}

// accumulator tracks one bar series' open bar.
type accumulator struct {
	open, high, low, closePx float64
	volume                   float64
	notional                 float64
	tickCount                int
	buyVolume                float64
	sellVolume               float64
	lastTime                 int64
}

// NewBuilder creates a builder with the given trigger thresholds.
func NewBuilder(t Thresholds) *Builder {
	return &Builder{thresholds: t}
}

// Update feeds one tick through all three triggers and returns the
// bars (0 to 3) that closed on it. The closing tick is included in the
// emitted bar and accumulation restarts empty, atomically with
// emission.
func (b *Builder) Update(t domain.Tick) []domain.Bar {
	var out []domain.Bar

	b.tick.add(t)
	b.volume.add(t)
	b.dollar.add(t)

	if b.thresholds.Ticks > 0 && b.tick.tickCount >= b.thresholds.Ticks {
		out = append(out, b.tick.emit(domain.TickBar))
	}
	if b.thresholds.Volume > 0 && b.volume.volume >= b.thresholds.Volume {
		out = append(out, b.volume.emit(domain.VolumeBar))
	}
	if b.thresholds.Dollar > 0 && b.dollar.notional >= b.thresholds.Dollar {
		out = append(out, b.dollar.emit(domain.DollarBar))
	}
	return out
}

func (a *accumulator) add(t domain.Tick) {
	price := t.Last
	if a.tickCount == 0 {
		a.open, a.high, a.low = price, price, price
	} else {
		if price > a.high {
			a.high = price
		}
		if price < a.low {
			a.low = price
		}
	}
	a.closePx = price
	a.volume += t.Volume
	a.notional += t.Notional()
	a.tickCount++
	a.lastTime = int64(t.Time)

	switch {
	case t.IsBuy():
		a.buyVolume += t.Volume
	case t.IsSell():
		a.sellVolume += t.Volume
	}
}

func (a *accumulator) emit(kind domain.BarKind) domain.Bar {
	bar := domain.Bar{
		Kind:       kind,
		Time:       quant.TimeStamp(a.lastTime),
		Open:       a.open,
		High:       a.high,
		Low:        a.low,
		Close:      a.closePx,
		Volume:     a.volume,
		TickCount:  a.tickCount,
		BuyVolume:  a.buyVolume,
		SellVolume: a.sellVolume,
	}
	*a = accumulator{}
	return bar
}

// Pending reports the open accumulation counts for status snapshots.
func (b *Builder) Pending() (ticks int, volume, dollar float64) {
	return b.tick.tickCount, b.volume.volume, b.dollar.notional
}
