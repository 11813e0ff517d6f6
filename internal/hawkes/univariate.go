package hawkes

import (
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"
)

// DefaultHistoryCap bounds per-process event retention. The reference
// model never truncates its event lists; a long-running engine must.
// 4096 events at the decay rates used here keeps the truncated
// excitation tail negligible while capping memory. Tunable via config.
const DefaultHistoryCap = 4096

// infeasiblePenalty is the loss returned to the optimizer outside the
// admissible (mu, alpha, beta) region. The stability constraint
// alpha < beta is enforced the same way rather than as a box bound.
const infeasiblePenalty = 1e10

// Univariate models a single event stream. State is the retained
// event history plus the current parameter set; updates must arrive in
// non-decreasing time order, once per observation.
type Univariate struct {
	params Params
	kernel Kernel

	events *timeRing
}

// timeRing is a fixed-capacity drop-oldest buffer of event times.
type timeRing struct {
	buf   []float64
	head  int
	count int
}

func newTimeRing(capacity int) *timeRing {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &timeRing{buf: make([]float64, capacity)}
}

func (r *timeRing) push(t float64) {
	r.buf[r.head] = t
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *timeRing) len() int { return r.count }

// last returns the most recent event time.
func (r *timeRing) last() float64 {
	idx := r.head - 1
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx]
}

// values copies retained event times, oldest first.
func (r *timeRing) values() []float64 {
	out := make([]float64, r.count)
	for i := 0; i < r.count; i++ {
		idx := r.head - r.count + i
		if idx < 0 {
			idx += len(r.buf)
		}
		out[i] = r.buf[idx]
	}
	return out
}

// NewUnivariate creates a process with the given parameters and kernel.
// historyCap <= 0 selects DefaultHistoryCap.
func NewUnivariate(params Params, kernel Kernel, historyCap int) *Univariate {
	return &Univariate{
		params: params,
		kernel: kernel,
		events: newTimeRing(historyCap),
	}
}

// Params returns the current parameter set.
func (u *Univariate) Params() Params { return u.params }

// SetParams swaps in a new parameter set (e.g. after a refit).
func (u *Univariate) SetParams(p Params) { u.params = p }

// EventCount reports how many events are retained.
func (u *Univariate) EventCount() int { return u.events.len() }

// Events copies the retained event history, oldest first.
func (u *Univariate) Events() []float64 { return u.events.values() }

// Append records an event arrival. Out-of-order timestamps are a
// data-quality fault: the event is clamped to the stream's last time
// so the non-decreasing invariant holds.
func (u *Univariate) Append(t float64) {
	if u.events.len() > 0 && t < u.events.last() {
		t = u.events.last()
	}
	u.events.push(t)
}

// Intensity evaluates the conditional intensity
// lambda(t) = mu + sum_{t_i < t} phi(t - t_i) over retained history.
func (u *Univariate) Intensity(t float64) float64 {
	lambda := u.params.Mu
	for _, ti := range u.events.values() {
		if ti < t {
			lambda += u.kernel.Eval(t-ti, u.params.Alpha, u.params.Beta)
		}
	}
	return lambda
}

// Simulate draws a realization on [0, T] by Ogata thinning: candidate
// inter-arrivals from Exponential(lambdaBar) with the current intensity
// plus alpha as the upper bound, accepted with probability
// lambda(t)/lambdaBar. Stops at T or maxEvents. An unstable parameter
// set is logged and simulated anyway; the algorithm stays valid but the
// realization can grow explosively, which maxEvents caps.
func (u *Univariate) Simulate(rng *rand.Rand, T float64, maxEvents int) []float64 {
	if !u.params.Stable() {
		slog.Warn("hawkes: simulating unstable process",
			slog.Float64("branching_ratio", u.params.BranchingRatio()))
	}

	sim := NewUnivariate(u.params, u.kernel, maxEvents)
	var events []float64
	t := 0.0
	lambdaBar := u.params.Mu

	for t < T && len(events) < maxEvents {
		if len(events) > 0 {
			// Intensity right after the last event plus excitation slack.
			lambdaBar = sim.Intensity(t) + u.params.Alpha
		}
		if lambdaBar <= 0 {
			break
		}

		t += rng.ExpFloat64() / lambdaBar
		if t >= T {
			break
		}

		if rng.Float64()*lambdaBar <= sim.Intensity(t) {
			events = append(events, t)
			sim.Append(t)
		}
	}
	return events
}

// LogLikelihood computes sum log lambda(t_i) - integral_0^T lambda(s) ds
// for a sorted event slice observed on [0, T]. The compensator integral
// is closed-form for the exponential kernel and trapezoid quadrature
// over a fixed grid otherwise.
func (u *Univariate) LogLikelihood(events []float64, T float64) float64 {
	return logLikelihood(u.params, u.kernel, events, T)
}

func logLikelihood(p Params, k Kernel, events []float64, T float64) float64 {
	if len(events) == 0 {
		return -p.Mu * T
	}

	var logSum float64
	for i, t := range events {
		lambda := p.Mu
		for _, tj := range events[:i] {
			lambda += k.Eval(t-tj, p.Alpha, p.Beta)
		}
		if lambda > 0 {
			logSum += math.Log(lambda)
		} else {
			// Negative intensity is numerically infeasible; penalize.
			logSum -= infeasiblePenalty
		}
	}

	var integral float64
	if k.ClosedFormIntegral() {
		integral = p.Mu * T
		for _, ti := range events {
			integral += p.Alpha / p.Beta * (1 - math.Exp(-p.Beta*(T-ti)))
		}
	} else {
		integral = numericalCompensator(p, k, events, T, 1000)
	}

	return logSum - integral
}

// numericalCompensator integrates the intensity on [0,T] by the
// trapezoid rule over nPoints grid points.
func numericalCompensator(p Params, k Kernel, events []float64, T float64, nPoints int) float64 {
	if nPoints < 2 {
		nPoints = 2
	}
	h := T / float64(nPoints-1)

	eval := func(t float64) float64 {
		lambda := p.Mu
		for _, ti := range events {
			if ti < t {
				lambda += k.Eval(t-ti, p.Alpha, p.Beta)
			}
		}
		return lambda
	}

	sum := (eval(0) + eval(T)) / 2
	for i := 1; i < nPoints-1; i++ {
		sum += eval(float64(i) * h)
	}
	return sum * h
}

// FitMLE estimates (mu, alpha, beta) by bounded maximum likelihood
// using Nelder-Mead. Positivity and the stability constraint
// alpha < beta are enforced as infeasible-region penalties. On
// optimizer failure the previous parameters are returned with
// Converged=false.
func (u *Univariate) FitMLE(events []float64, T float64) (Params, FitStatus) {
	status := FitStatus{Events: len(events)}
	if len(events) == 0 || T <= 0 {
		return u.params, status
	}

	negLogLik := func(x []float64) float64 {
		mu, alpha, beta := x[0], x[1], x[2]
		if mu <= 0 || alpha <= 0 || beta <= 0 || alpha >= beta {
			return infeasiblePenalty
		}
		return -logLikelihood(Params{Mu: mu, Alpha: alpha, Beta: beta}, u.kernel, events, T)
	}

	x0 := []float64{float64(len(events)) / T * 0.5, 0.5, 1.0}
	problem := optimize.Problem{Func: negLogLik}

	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil || result == nil {
		slog.Warn("hawkes: MLE fit failed, keeping previous parameters",
			slog.Any("error", err))
		return u.params, status
	}

	fitted := Params{Mu: result.X[0], Alpha: result.X[1], Beta: result.X[2]}
	if !fitted.Valid() || !fitted.Stable() {
		slog.Warn("hawkes: MLE produced infeasible parameters, keeping previous",
			slog.Float64("mu", fitted.Mu),
			slog.Float64("alpha", fitted.Alpha),
			slog.Float64("beta", fitted.Beta))
		return u.params, status
	}

	status.Converged = true
	status.Iterations = result.Stats.MajorIterations
	status.NegLogLik = result.F
	u.params = fitted
	return fitted, status
}

// EM fitting tolerances.
const (
	emMaxIter = 100
	emTol     = 1e-6
)

// FitEM estimates parameters by expectation-maximization: the E-step
// computes branching probabilities, the M-step updates mu and alpha in
// closed form and refines beta by Newton-Raphson. Stops on parameter
// change below tolerance or the iteration cap.
func (u *Univariate) FitEM(events []float64, T float64) (Params, FitStatus) {
	status := FitStatus{Events: len(events)}
	n := len(events)
	if n == 0 || T <= 0 {
		return u.params, status
	}

	mu := float64(n) / T * 0.5
	alpha := 0.5
	beta := 1.0

	// p[i][j] = probability that event i was triggered by event j < i.
	p := make([][]float64, n)
	for i := range p {
		p[i] = make([]float64, n)
	}

	for iter := 0; iter < emMaxIter; iter++ {
		// E-step: branching structure under current parameters.
		var pSum float64
		for i := 0; i < n; i++ {
			lambda := mu
			for j := 0; j < i; j++ {
				kern := alpha * math.Exp(-beta*(events[i]-events[j]))
				p[i][j] = kern
				lambda += kern
			}
			if lambda > 0 {
				for j := 0; j < i; j++ {
					p[i][j] /= lambda
					pSum += p[i][j]
				}
			}
		}

		// M-step: closed-form mu and alpha, Newton refinement of beta.
		var background float64
		for i := 0; i < n; i++ {
			rowSum := 0.0
			for j := 0; j < i; j++ {
				rowSum += p[i][j]
			}
			background += 1 - rowSum
		}
		muNew := background / T

		alphaNew, betaNew := alpha, beta
		if pSum > 0 {
			alphaNew = pSum / float64(n)
			betaNew = emBetaUpdate(events, p, beta)
		}

		if math.Abs(muNew-mu) < emTol &&
			math.Abs(alphaNew-alpha) < emTol &&
			math.Abs(betaNew-beta) < emTol {
			mu, alpha, beta = muNew, alphaNew, betaNew
			status.Converged = true
			status.Iterations = iter + 1
			break
		}
		mu, alpha, beta = muNew, alphaNew, betaNew
		status.Iterations = iter + 1
	}

	fitted := Params{Mu: mu, Alpha: alpha, Beta: beta}
	if !fitted.Valid() {
		slog.Warn("hawkes: EM produced invalid parameters, keeping previous")
		status.Converged = false
		return u.params, status
	}

	status.NegLogLik = -logLikelihood(fitted, u.kernel, events, T)
	u.params = fitted
	return fitted, status
}

// emBetaUpdate runs a short Newton-Raphson on the beta estimating
// equation, clamped positive.
func emBetaUpdate(events []float64, p [][]float64, beta float64) float64 {
	n := len(events)
	for iter := 0; iter < 10; iter++ {
		var grad, hess float64
		for i := 0; i < n; i++ {
			for j := 0; j < i; j++ {
				dt := events[i] - events[j]
				grad += p[i][j] * (1 - beta*dt)
				hess += p[i][j] * dt * dt
			}
		}
		if math.Abs(hess) < 1e-10 {
			break
		}
		next := beta + grad/hess
		if next < 1e-6 {
			next = 1e-6
		}
		if math.Abs(next-beta) < 1e-8 {
			return next
		}
		beta = next
	}
	return beta
}
