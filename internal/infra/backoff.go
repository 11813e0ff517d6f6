package infra

import "time"

// Backoff computes reconnect delays: the base doubles per attempt up
// to the ceiling. Use DefaultBackoff or fill both fields.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is tuned for feed reconnects: cheap first retries so
// a transient drop loses little data, a ceiling low enough that the
// circuit breaker, not the backoff, owns long cool-offs.
func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}
}

// Delay returns the wait before retry attempt (0-based). Negative
// attempts get the base delay.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}
