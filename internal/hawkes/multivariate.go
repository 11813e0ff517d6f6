package hawkes

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Multivariate models d interacting event streams with exponential
// cross-excitation: lambda_i(t) = mu_i + sum_j sum_{t_k^j < t}
// alpha_ij * exp(-beta_ij * (t - t_k^j)).
type Multivariate struct {
	dims  int
	mu    []float64
	alpha *mat.Dense
	beta  *mat.Dense

	events []*timeRing // one stream per dimension
}

// Default initialization: diagonal dominance with weak cross-coupling.
const (
	defaultDiagExcitation  = 0.5
	defaultCrossExcitation = 0.05
	defaultDecay           = 1.0
)

// NewMultivariate creates a d-dimensional process. Nil mu/alpha/beta
// select the default diagonally-dominant parameterization.
func NewMultivariate(dims int, mu []float64, alpha, beta *mat.Dense, historyCap int) *Multivariate {
	if mu == nil {
		mu = make([]float64, dims)
		for i := range mu {
			mu[i] = 0.1
		}
	}
	if alpha == nil {
		alpha = mat.NewDense(dims, dims, nil)
		for i := 0; i < dims; i++ {
			for j := 0; j < dims; j++ {
				if i == j {
					alpha.Set(i, j, defaultDiagExcitation)
				} else {
					alpha.Set(i, j, defaultCrossExcitation)
				}
			}
		}
	}
	if beta == nil {
		beta = mat.NewDense(dims, dims, nil)
		for i := 0; i < dims; i++ {
			for j := 0; j < dims; j++ {
				beta.Set(i, j, defaultDecay)
			}
		}
	}

	events := make([]*timeRing, dims)
	for i := range events {
		events[i] = newTimeRing(historyCap)
	}

	return &Multivariate{dims: dims, mu: mu, alpha: alpha, beta: beta, events: events}
}

// Dims returns the number of event streams.
func (m *Multivariate) Dims() int { return m.dims }

// Mu returns the baseline intensity of dimension i.
func (m *Multivariate) Mu(i int) float64 { return m.mu[i] }

// SetDiagonal installs independently fitted univariate parameters on
// dimension i: baseline plus self-excitation. Cross terms are left at
// their configured coupling.
func (m *Multivariate) SetDiagonal(i int, p Params) {
	m.mu[i] = p.Mu
	m.alpha.Set(i, i, p.Alpha)
	m.beta.Set(i, i, p.Beta)
}

// Append records an event on dimension i, clamped to keep the stream
// non-decreasing.
func (m *Multivariate) Append(i int, t float64) {
	r := m.events[i]
	if r.len() > 0 && t < r.last() {
		t = r.last()
	}
	r.push(t)
}

// EventCount reports retained events on dimension i.
func (m *Multivariate) EventCount(i int) int { return m.events[i].len() }

// EventsCopy returns a copy of dimension i's retained history.
func (m *Multivariate) EventsCopy(i int) []float64 { return m.events[i].values() }

// LastEventTime returns the latest event time across all dimensions,
// 0 when no events are retained.
func (m *Multivariate) LastEventTime() float64 {
	var last float64
	for _, r := range m.events {
		if r.len() > 0 && r.last() > last {
			last = r.last()
		}
	}
	return last
}

// Intensity evaluates dimension i's conditional intensity at t,
// summing self- and cross-excitation over all retained streams.
func (m *Multivariate) Intensity(t float64, i int) float64 {
	lambda := m.mu[i]
	for j := 0; j < m.dims; j++ {
		aij := m.alpha.At(i, j)
		bij := m.beta.At(i, j)
		for _, tk := range m.events[j].values() {
			if tk < t {
				lambda += aij * math.Exp(-bij*(t-tk))
			}
		}
	}
	return lambda
}

// Simulate draws a joint realization on [0, T]: the next global event
// time comes from the aggregate intensity across dimensions, then the
// firing dimension is assigned by categorical sampling proportional to
// each dimension's instantaneous intensity.
func (m *Multivariate) Simulate(rng *rand.Rand, T float64, maxEventsPerDim int) [][]float64 {
	sim := NewMultivariate(m.dims, append([]float64(nil), m.mu...), m.alpha, m.beta, maxEventsPerDim)

	out := make([][]float64, m.dims)
	t := 0.0
	total := 0
	maxTotal := maxEventsPerDim * m.dims

	for t < T && total < maxTotal {
		var aggregate float64
		for i := 0; i < m.dims; i++ {
			aggregate += sim.Intensity(t, i)
		}
		if aggregate <= 0 {
			for _, mu := range m.mu {
				aggregate += mu
			}
			if aggregate <= 0 {
				break
			}
		}

		t += rng.ExpFloat64() / aggregate
		if t >= T {
			break
		}

		intensities := make([]float64, m.dims)
		var sum float64
		for i := 0; i < m.dims; i++ {
			intensities[i] = sim.Intensity(t, i)
			sum += intensities[i]
		}
		if sum <= 0 {
			continue
		}

		// Categorical draw proportional to instantaneous intensity.
		u := rng.Float64() * sum
		dim := m.dims - 1
		for i, lam := range intensities {
			if u < lam {
				dim = i
				break
			}
			u -= lam
		}

		out[dim] = append(out[dim], t)
		sim.Append(dim, t)
		total++
	}
	return out
}

// SimulateWindow continues the receiver's process on (t0, t0+horizon],
// returning the number of generated events per dimension. The receiver
// is mutated: generated events join its history so later excitation
// sees them. Callers forecasting from a shared history must hand in a
// throwaway copy.
func (m *Multivariate) SimulateWindow(rng *rand.Rand, t0, horizon float64, maxEventsPerDim int) []int {
	counts := make([]int, m.dims)
	end := t0 + horizon
	t := t0
	total := 0
	maxTotal := maxEventsPerDim * m.dims

	for t < end && total < maxTotal {
		var aggregate float64
		for i := 0; i < m.dims; i++ {
			aggregate += m.Intensity(t, i)
		}
		if aggregate <= 0 {
			break
		}

		t += rng.ExpFloat64() / aggregate
		if t >= end {
			break
		}

		intensities := make([]float64, m.dims)
		var sum float64
		for i := 0; i < m.dims; i++ {
			intensities[i] = m.Intensity(t, i)
			sum += intensities[i]
		}
		if sum <= 0 {
			continue
		}

		u := rng.Float64() * sum
		dim := m.dims - 1
		for i, lam := range intensities {
			if u < lam {
				dim = i
				break
			}
			u -= lam
		}

		counts[dim]++
		m.Append(dim, t)
		total++
	}
	return counts
}

// BranchingRatios returns the elementwise alpha/beta matrix, the
// per-pair stability diagnostics.
func (m *Multivariate) BranchingRatios() *mat.Dense {
	out := mat.NewDense(m.dims, m.dims, nil)
	for i := 0; i < m.dims; i++ {
		for j := 0; j < m.dims; j++ {
			b := m.beta.At(i, j)
			if b > 0 {
				out.Set(i, j, m.alpha.At(i, j)/b)
			}
		}
	}
	return out
}

// MeanSelfExcitation is the diagonal mean of the alpha matrix.
func (m *Multivariate) MeanSelfExcitation() float64 {
	var sum float64
	for i := 0; i < m.dims; i++ {
		sum += m.alpha.At(i, i)
	}
	return sum / float64(m.dims)
}

// MeanCrossExcitation is the off-diagonal mean of the alpha matrix.
func (m *Multivariate) MeanCrossExcitation() float64 {
	if m.dims < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < m.dims; i++ {
		for j := 0; j < m.dims; j++ {
			if i != j {
				sum += m.alpha.At(i, j)
			}
		}
	}
	return sum / float64(m.dims*(m.dims-1))
}
