package event

import "sync"

// Tick events dominate inbox traffic; pooling the envelopes keeps the
// ingestion path allocation-free. Book events are not pooled because
// the snapshot escapes into calculator state.

var tickPool = sync.Pool{
	New: func() any { return new(TickEvent) },
}

// AcquireTickEvent returns a zeroed TickEvent from the pool.
func AcquireTickEvent() *TickEvent {
	return tickPool.Get().(*TickEvent)
}

// ReleaseTickEvent resets the event and returns it to the pool. The
// caller must not touch the event afterwards.
func ReleaseTickEvent(e *TickEvent) {
	*e = TickEvent{}
	tickPool.Put(e)
}

// Warmup pre-populates the pool so the first burst of ticks does not
// pay the allocation cost.
func Warmup() {
	const n = 256
	buf := make([]*TickEvent, 0, n)
	for i := 0; i < n; i++ {
		buf = append(buf, AcquireTickEvent())
	}
	for _, e := range buf {
		ReleaseTickEvent(e)
	}
}
