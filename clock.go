package desim

import "sync/atomic"

// VirtualTime is a single scalar instant in simulated time. It starts at
// zero and only ever advances when the dispatcher advances past a
// dequeued event's time.
type VirtualTime int64

// VirtualDuration is an offset in virtual time, as used by PostAfter,
// ScheduleTimer-like helpers, and Sleep.
type VirtualDuration int64

// clock owns the monotone "now" scalar and the insertion-sequence
// counter used to break ties between events scheduled at the same
// VirtualTime. now is advanced exclusively by the dispatcher goroutine
// but read from anywhere (e.g. Controller.Now from a user goroutine);
// seq is advanced by every post, from whichever goroutine posts; hence
// the atomics.
type clock struct {
	now VirtualTime // written only via store(), read via Now()
	seq atomic.Uint64
}

// store advances now. Callers must only call this from the dispatcher,
// and only with non-decreasing values (spec invariant 2).
func (c *clock) store(t VirtualTime) {
	atomic.StoreInt64((*int64)(&c.now), int64(t))
}

// load returns the current virtual instant.
func (c *clock) load() VirtualTime {
	return VirtualTime(atomic.LoadInt64((*int64)(&c.now)))
}

// nextSeq returns the next insertion sequence number, fatal on overflow
// per spec.md 4.A ("Overflow of seq is a fatal error").
func (c *clock) nextSeq() uint64 {
	n := c.seq.Add(1)
	if n == 0 {
		panic("desim: event sequence counter overflowed")
	}
	return n - 1
}
