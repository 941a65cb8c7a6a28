package desim

import "sync/atomic"

// eventKind distinguishes a fresh dispatch to a target entity from a
// resumption of a parked continuation (spec.md 3, "Event record").
type eventKind uint8

const (
	kindInvoke eventKind = iota
	kindReply
	kindTimeout
)

// eventRecord is the scheduled item living in the event queue. Fields
// match spec.md 3 ("Event record") exactly; cancelled is an atomic so
// Cancel can be called concurrently with the dispatcher's pop loop
// (spec.md §5, "External concurrency").
type eventRecord struct {
	time VirtualTime
	seq  uint64

	kind eventKind

	// Invoke fields.
	target  EntityID
	eventID EventID
	args    []Value

	// Reply fields (kind == kindReply).
	replyValue Value
	replyErr   error

	// caller is non-nil iff this Invoke was posted by
	// PostContinuing/PostContinuingWithTimeout, or this is a Reply or
	// Timeout record destined for a parked continuation (including the
	// self-replies used by Sleep and Channel).
	caller *continuation

	cancelled atomic.Bool
}

// EventHandle is an opaque reference returned by Post/PostAfter, usable
// with Controller.Cancel. The zero value refers to no event.
type EventHandle struct {
	record *eventRecord
}

// Valid reports whether h refers to an event at all (is not the zero
// EventHandle). It stays true after the event is cancelled or dispatched.
func (h EventHandle) Valid() bool { return h.record != nil }

// eventHeap implements container/heap.Interface, ordering by (time, seq)
// per spec.md invariant 1 ("strict total order ... two events never
// compare equal; insertion order breaks ties deterministically").
// Grounded on eventloop/loop.go's timerHeap, generalized from a single
// `when` field to the (time, seq) pair.
type eventHeap []*eventRecord

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*eventRecord))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
