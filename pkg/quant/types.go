// Package quant holds the shared time and sequencing primitives of the
// hotpath.
package quant

import "sync/atomic"

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

// FromMillis converts an exchange millisecond timestamp to micros.
func FromMillis(ms int64) TimeStamp {
	return TimeStamp(ms * 1000)
}

// Seconds returns the timestamp as floating-point seconds since the epoch.
// The Hawkes engine operates on event times in seconds.
func (t TimeStamp) Seconds() float64 {
	return float64(t) / 1e6
}

// NextSeq generates the next sequence number atomically.
func NextSeq(ptr *uint64) uint64 {
	return atomic.AddUint64(ptr, 1)
}
