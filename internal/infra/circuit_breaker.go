package infra

import (
	"log/slog"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker shields a flapping feed endpoint from a tight redial
// loop. A streak of consecutive failures opens it; an open breaker
// rejects dials until the cool-off elapses, then admits a single trial
// in half-open. The trial's outcome decides: success closes, failure
// reopens for another cool-off. Safe for concurrent use.
type CircuitBreaker struct {
	name string

	mu       sync.Mutex
	state    State
	failures int // consecutive failures since the last success
	openedAt time.Time

	maxFailures int
	cooloff     time.Duration
}

// CircuitBreakerConfig carries the breaker tunables. Zero values
// select the feed defaults.
type CircuitBreakerConfig struct {
	Name        string
	MaxFailures int
	Cooloff     time.Duration
}

// NewCircuitBreaker creates a closed breaker. Feed defaults: three
// consecutive failures open it for a one-minute cool-off.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooloff <= 0 {
		cfg.Cooloff = time.Minute
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooloff:     cfg.Cooloff,
	}
}

// Allow reports whether a dial may proceed now. An open breaker whose
// cool-off has elapsed flips to half-open and admits the trial dial.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cooloff {
		cb.state = StateHalfOpen
		slog.Info("BREAKER_HALF_OPEN", slog.String("name", cb.name))
	}
	return cb.state != StateOpen
}

// RecordSuccess closes the breaker and clears the failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		slog.Info("BREAKER_CLOSED", slog.String("name", cb.name))
	}
	cb.state = StateClosed
	cb.failures = 0
}

// RecordFailure extends the failure streak. The breaker opens when the
// streak reaches the limit, and immediately on a half-open failure.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state != StateHalfOpen && cb.failures < cb.maxFailures {
		return
	}
	if cb.state != StateOpen {
		slog.Warn("BREAKER_OPEN",
			slog.String("name", cb.name),
			slog.Int("failures", cb.failures),
			slog.Duration("cooloff", cb.cooloff))
	}
	cb.state = StateOpen
	cb.openedAt = time.Now()
}

// GetState returns the current position for monitoring.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed and clears its history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	slog.Info("BREAKER_RESET", slog.String("name", cb.name))
}
