package hawkes

import (
	"fmt"
	"math"
)

// KernelKind is the closed set of excitation kernels. String-valued
// selectors from config are parsed once at the boundary; internal
// dispatch is a switch on the tag.
type KernelKind uint8

const (
	KernelExponential KernelKind = iota + 1
	KernelPowerLaw
	KernelExpSum
)

func (k KernelKind) String() string {
	switch k {
	case KernelExponential:
		return "exponential"
	case KernelPowerLaw:
		return "powerlaw"
	case KernelExpSum:
		return "expsum"
	default:
		return "unknown"
	}
}

// ParseKernel maps a config string to a kernel tag.
func ParseKernel(s string) (KernelKind, error) {
	switch s {
	case "", "exponential", "exp":
		return KernelExponential, nil
	case "powerlaw", "power_law":
		return KernelPowerLaw, nil
	case "expsum", "sum_exponentials":
		return KernelExpSum, nil
	default:
		return 0, fmt.Errorf("hawkes: unknown kernel %q", s)
	}
}

// Kernel evaluates the excitation contribution phi(tau) of a past
// event tau seconds in the past, under the configured kind.
type Kernel struct {
	Kind KernelKind

	// P is the power-law exponent; only read for KernelPowerLaw.
	P float64

	// Components for KernelExpSum: phi(t) = sum alpha_i * exp(-beta_i t),
	// capturing multiple excitation timescales.
	Alphas []float64
	Betas  []float64
}

// DefaultPowerLawExponent matches the reference parameterization.
const DefaultPowerLawExponent = 1.1

// ExponentialKernel is the standard financial-application kernel.
func ExponentialKernel() Kernel {
	return Kernel{Kind: KernelExponential}
}

// PowerLawKernel captures long-memory excitation.
func PowerLawKernel(p float64) Kernel {
	if p <= 0 {
		p = DefaultPowerLawExponent
	}
	return Kernel{Kind: KernelPowerLaw, P: p}
}

// ExpSumKernel sums exponentials over several timescales. The alpha
// and beta slices must be the same length.
func ExpSumKernel(alphas, betas []float64) (Kernel, error) {
	if len(alphas) != len(betas) || len(alphas) == 0 {
		return Kernel{}, fmt.Errorf("hawkes: expsum kernel needs matched non-empty component slices")
	}
	return Kernel{Kind: KernelExpSum, Alphas: alphas, Betas: betas}, nil
}

// Eval computes phi(tau) for excitation alpha and decay beta.
// For KernelExpSum the per-process alpha/beta are ignored in favor of
// the component slices.
func (k Kernel) Eval(tau, alpha, beta float64) float64 {
	if tau < 0 {
		return 0
	}
	switch k.Kind {
	case KernelPowerLaw:
		return alpha / math.Pow(1+beta*tau, k.P)
	case KernelExpSum:
		var sum float64
		for i := range k.Alphas {
			sum += k.Alphas[i] * math.Exp(-k.Betas[i]*tau)
		}
		return sum
	default:
		return alpha * math.Exp(-beta*tau)
	}
}

// ClosedFormIntegral reports whether the compensator integral has a
// closed form under this kernel (exponential only); otherwise the
// log-likelihood falls back to numerical quadrature.
func (k Kernel) ClosedFormIntegral() bool {
	return k.Kind == KernelExponential
}
