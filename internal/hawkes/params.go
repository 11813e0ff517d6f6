// Package hawkes implements self-exciting point-process models of
// order arrivals: univariate and multivariate processes with
// exponential, power-law and sum-of-exponentials kernels, Ogata
// thinning simulation, maximum-likelihood and EM fitting, and the
// six-dimensional order-flow specialization whose intensities and
// excitation diagnostics feed the feature vector.
package hawkes

// Params holds the parameters of a univariate Hawkes process:
// baseline intensity mu >= 0, excitation alpha >= 0, decay beta > 0.
type Params struct {
	Mu    float64 `json:"mu"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// BranchingRatio returns alpha/beta, the expected number of children
// per event. Values >= 1 mean the process is explosive.
func (p Params) BranchingRatio() float64 {
	if p.Beta == 0 {
		return 0
	}
	return p.Alpha / p.Beta
}

// Stable reports whether the stationarity condition alpha/beta < 1
// holds. Instability is a diagnostic, never a hard failure: callers
// flag it and continue with best-effort output.
func (p Params) Stable() bool {
	return p.Beta > 0 && p.BranchingRatio() < 1
}

// Valid reports whether the parameters lie in the admissible region.
func (p Params) Valid() bool {
	return p.Mu >= 0 && p.Alpha >= 0 && p.Beta > 0
}

// FitStatus reports the outcome of a fitting run. On non-convergence
// the engine retains the last good parameter set; Converged=false is a
// status flag for downstream consumers, not an error.
type FitStatus struct {
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	NegLogLik  float64 `json:"neg_log_lik"`
	Events     int     `json:"events"`
}
