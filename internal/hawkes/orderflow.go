package hawkes

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"microflow/internal/domain"
)

// FitMethod is the closed set of fitting strategies.
type FitMethod uint8

const (
	FitMLE FitMethod = iota + 1
	FitEM
)

func (m FitMethod) String() string {
	switch m {
	case FitMLE:
		return "mle"
	case FitEM:
		return "em"
	default:
		return "unknown"
	}
}

// ParseFitMethod maps a config string to a fit-method tag.
func ParseFitMethod(s string) (FitMethod, error) {
	switch s {
	case "", "mle", "MLE":
		return FitMLE, nil
	case "em", "EM":
		return FitEM, nil
	default:
		return 0, fmt.Errorf("hawkes: unknown fit method %q", s)
	}
}

// ofParams is an immutable parameter snapshot. Refits build a new one
// and swap the pointer so concurrent intensity queries never observe a
// partially-updated matrix.
type ofParams struct {
	mu    []float64
	alpha *mat.Dense
	beta  *mat.Dense
}

func (p *ofParams) clone() *ofParams {
	return &ofParams{
		mu:    append([]float64(nil), p.mu...),
		alpha: mat.DenseCopyOf(p.alpha),
		beta:  mat.DenseCopyOf(p.beta),
	}
}

// OrderFlow is the six-dimensional Hawkes specialization over market,
// limit and cancel arrivals on both sides. Event appends come from the
// single-writer pipeline; refits run as a background batch job and
// publish parameters atomically.
type OrderFlow struct {
	kernel     Kernel
	historyCap int
	crossAlpha float64

	params atomic.Pointer[ofParams]

	mu     sync.RWMutex // guards events against refit-time copies
	events [domain.NumOrderTypes]*timeRing

	lastFit [domain.NumOrderTypes]FitStatus
}

// OrderFlowConfig carries the tunables for the specialization.
type OrderFlowConfig struct {
	Kernel     Kernel
	HistoryCap int
	// Defaults per dimension before the first fit.
	Baseline Params
	// CrossAlpha is the weak cross-excitation coupling installed on
	// off-diagonal alpha entries.
	CrossAlpha float64
}

// NewOrderFlow builds the engine with diagonal defaults and weak cross
// coupling.
func NewOrderFlow(cfg OrderFlowConfig) *OrderFlow {
	base := cfg.Baseline
	if base.Mu <= 0 {
		base.Mu = 0.1
	}
	if base.Alpha <= 0 {
		base.Alpha = 0.5
	}
	if base.Beta <= 0 {
		base.Beta = 1.0
	}
	cross := cfg.CrossAlpha
	if cross < 0 {
		cross = 0
	}

	n := domain.NumOrderTypes
	p := &ofParams{
		mu:    make([]float64, n),
		alpha: mat.NewDense(n, n, nil),
		beta:  mat.NewDense(n, n, nil),
	}
	for i := 0; i < n; i++ {
		p.mu[i] = base.Mu
		for j := 0; j < n; j++ {
			if i == j {
				p.alpha.Set(i, j, base.Alpha)
			} else {
				p.alpha.Set(i, j, cross)
			}
			p.beta.Set(i, j, base.Beta)
		}
	}

	of := &OrderFlow{kernel: cfg.Kernel, historyCap: cfg.HistoryCap, crossAlpha: cross}
	of.params.Store(p)
	for i := range of.events {
		of.events[i] = newTimeRing(cfg.HistoryCap)
	}
	return of
}

// Observe records a classified order event. Single writer; timestamps
// within one type are clamped non-decreasing.
func (of *OrderFlow) Observe(ev domain.OrderEvent) {
	if int(ev.Type) >= domain.NumOrderTypes {
		return
	}
	t := ev.Time.Seconds()
	of.mu.Lock()
	r := of.events[ev.Type]
	if r.len() > 0 && t < r.last() {
		t = r.last()
	}
	r.push(t)
	of.mu.Unlock()
}

// Intensity evaluates the conditional intensity of one order type at
// time t (seconds) under the current parameter snapshot.
func (of *OrderFlow) Intensity(t float64, typ domain.OrderType) float64 {
	p := of.params.Load()
	i := int(typ)

	of.mu.RLock()
	defer of.mu.RUnlock()

	lambda := p.mu[i]
	for j := 0; j < domain.NumOrderTypes; j++ {
		aij := p.alpha.At(i, j)
		if aij == 0 {
			continue
		}
		bij := p.beta.At(i, j)
		for _, tk := range of.events[j].values() {
			if tk < t {
				lambda += of.kernel.Eval(t-tk, aij, bij)
			}
		}
	}
	return lambda
}

// Features is the Hawkes block of the feature vector plus stability
// diagnostics.
type Features struct {
	Intensities [domain.NumOrderTypes]float64

	BuyIntensity     float64
	SellIntensity    float64
	BuySellRatio     float64
	MarketLimitRatio float64
	CancelRatio      float64

	SelfExcitation  float64
	CrossExcitation float64
	MaxBranching    float64
	AvgBranching    float64

	// Stable is false when any pairwise branching ratio reaches 1.
	// Downstream consumers decide whether to discount such features.
	Stable bool
}

const ratioEps = 1e-10

// FeaturesAt derives the summary features at time t (seconds).
func (of *OrderFlow) FeaturesAt(t float64) Features {
	var f Features
	for i := 0; i < domain.NumOrderTypes; i++ {
		f.Intensities[i] = of.Intensity(t, domain.OrderType(i))
	}

	buy := f.Intensities[domain.MarketBuy] + f.Intensities[domain.LimitBuy]
	sell := f.Intensities[domain.MarketSell] + f.Intensities[domain.LimitSell]
	market := f.Intensities[domain.MarketBuy] + f.Intensities[domain.MarketSell]
	limit := f.Intensities[domain.LimitBuy] + f.Intensities[domain.LimitSell]
	cancel := f.Intensities[domain.CancelBuy] + f.Intensities[domain.CancelSell]

	f.BuyIntensity = buy
	f.SellIntensity = sell
	if buy+sell > 0 {
		f.BuySellRatio = buy / (buy + sell)
	} else {
		f.BuySellRatio = 0.5
	}
	f.MarketLimitRatio = market / (market + limit + ratioEps)
	f.CancelRatio = cancel / (buy + sell + ratioEps)

	p := of.params.Load()
	n := domain.NumOrderTypes
	var diagSum, offSum, brSum, brMax float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			a := p.alpha.At(i, j)
			if i == j {
				diagSum += a
			} else {
				offSum += a
			}
			if b := p.beta.At(i, j); b > 0 {
				br := a / b
				brSum += br
				if br > brMax {
					brMax = br
				}
			}
		}
	}
	f.SelfExcitation = diagSum / float64(n)
	f.CrossExcitation = offSum / float64(n*(n-1))
	f.MaxBranching = brMax
	f.AvgBranching = brSum / float64(n*n)
	f.Stable = brMax < 1

	return f
}

// IntensityForecast is a Monte Carlo estimate of forward arrival
// rates: per-type mean and standard deviation across simulated paths,
// in events per second.
type IntensityForecast struct {
	Mean [domain.NumOrderTypes]float64
	Std  [domain.NumOrderTypes]float64
}

const defaultForecastSamples = 100

// PredictIntensity forecasts each order type's arrival rate over the
// next horizon seconds by simulating the fitted process forward from
// the retained history. Each sample seeds a throwaway copy of the
// process so draws are independent and the live state is untouched.
// nSamples <= 0 selects the default draw count. Like Refit, this is a
// batch job for callers off the hotpath.
func (of *OrderFlow) PredictIntensity(rng *rand.Rand, horizon float64, nSamples int) IntensityForecast {
	var fc IntensityForecast
	if horizon <= 0 {
		return fc
	}
	if nSamples <= 0 {
		nSamples = defaultForecastSamples
	}

	p := of.params.Load()
	histories := make([][]float64, domain.NumOrderTypes)
	of.mu.RLock()
	for i := range of.events {
		histories[i] = of.events[i].values()
	}
	of.mu.RUnlock()

	var t0 float64
	for _, h := range histories {
		if n := len(h); n > 0 && h[n-1] > t0 {
			t0 = h[n-1]
		}
	}

	histCap := of.historyCap
	if histCap <= 0 {
		histCap = DefaultHistoryCap
	}

	rates := make([][]float64, domain.NumOrderTypes)
	for i := range rates {
		rates[i] = make([]float64, nSamples)
	}
	for s := 0; s < nSamples; s++ {
		sim := NewMultivariate(domain.NumOrderTypes,
			append([]float64(nil), p.mu...), p.alpha, p.beta, histCap)
		for i, h := range histories {
			for _, tk := range h {
				sim.Append(i, tk)
			}
		}
		counts := sim.SimulateWindow(rng, t0, horizon, histCap)
		for i, c := range counts {
			rates[i][s] = float64(c) / horizon
		}
	}

	for i := 0; i < domain.NumOrderTypes; i++ {
		fc.Mean[i] = stat.Mean(rates[i], nil)
		if nSamples > 1 {
			fc.Std[i] = stat.StdDev(rates[i], nil)
		}
	}
	return fc
}

// Refit fits each dimension's diagonal parameters independently from
// its retained event history using the given method and publishes the
// new parameter snapshot atomically. Dimensions whose fit does not
// converge keep their previous parameters. now is the right edge of
// the observation window in seconds.
func (of *OrderFlow) Refit(method FitMethod, now float64) []FitStatus {
	// Copy event histories so fitting never blocks the hotpath.
	copies := make([][]float64, domain.NumOrderTypes)
	of.mu.RLock()
	for i := range of.events {
		copies[i] = of.events[i].values()
	}
	of.mu.RUnlock()

	old := of.params.Load()
	next := old.clone()
	statuses := make([]FitStatus, domain.NumOrderTypes)

	for i, events := range copies {
		if len(events) < 2 {
			continue
		}

		// Normalize times to start from 0 for numerical conditioning.
		t0 := events[0]
		norm := make([]float64, len(events))
		for k, t := range events {
			norm[k] = t - t0
		}
		T := now - t0
		if T <= 0 {
			T = norm[len(norm)-1] + 1e-9
		}

		uni := NewUnivariate(Params{
			Mu:    old.mu[i],
			Alpha: old.alpha.At(i, i),
			Beta:  old.beta.At(i, i),
		}, of.kernel, of.historyCap)

		var fitted Params
		var status FitStatus
		switch method {
		case FitEM:
			fitted, status = uni.FitEM(norm, T)
		default:
			fitted, status = uni.FitMLE(norm, T)
		}
		statuses[i] = status

		if !status.Converged {
			slog.Warn("hawkes: dimension refit did not converge, keeping last good parameters",
				slog.String("type", domain.OrderType(i).String()),
				slog.String("method", method.String()),
				slog.Int("events", len(events)))
			continue
		}

		next.mu[i] = fitted.Mu
		next.alpha.Set(i, i, fitted.Alpha)
		next.beta.Set(i, i, fitted.Beta)
	}

	of.params.Store(next)

	of.mu.Lock()
	copy(of.lastFit[:], statuses)
	of.mu.Unlock()

	return statuses
}

// LastFitStatus returns the most recent fit status for one order type.
func (of *OrderFlow) LastFitStatus(typ domain.OrderType) FitStatus {
	of.mu.RLock()
	defer of.mu.RUnlock()
	return of.lastFit[typ]
}

// EventCounts reports retained events per order type.
func (of *OrderFlow) EventCounts() [domain.NumOrderTypes]int {
	var out [domain.NumOrderTypes]int
	of.mu.RLock()
	for i, r := range of.events {
		out[i] = r.len()
	}
	of.mu.RUnlock()
	return out
}

// DiagonalParams exports the per-type baseline and self-excitation
// parameters, e.g. for a warm-start snapshot.
func (of *OrderFlow) DiagonalParams() [domain.NumOrderTypes]Params {
	p := of.params.Load()
	var out [domain.NumOrderTypes]Params
	for i := range out {
		out[i] = Params{Mu: p.mu[i], Alpha: p.alpha.At(i, i), Beta: p.beta.At(i, i)}
	}
	return out
}

// RestoreDiagonal installs previously fitted per-type parameters.
// Invalid entries are skipped, keeping the current values.
func (of *OrderFlow) RestoreDiagonal(params [domain.NumOrderTypes]Params) {
	next := of.params.Load().clone()
	for i, q := range params {
		if !q.Valid() {
			continue
		}
		next.mu[i] = q.Mu
		next.alpha.Set(i, i, q.Alpha)
		next.beta.Set(i, i, q.Beta)
	}
	of.params.Store(next)
}
