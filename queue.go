package desim

import (
	"container/heap"
	"sync"
)

// eventQueue is a priority queue of *eventRecord ordered by (time, seq),
// safe for concurrent Push from any goroutine (spec.md §5, "External
// concurrency: post and post_after are safe to call from threads other
// than the dispatcher"). PopMin is intended to be called only from the
// dispatcher goroutine, but taking the same lock keeps it safe either
// way.
//
// Grounded on eventloop/loop.go's timerHeap usage (container/heap over a
// slice of value-type timers); here the heap holds pointers so Cancel
// can flip a flag without needing the event's current heap index.
type eventQueue struct {
	mu sync.Mutex
	h  eventHeap
}

func newEventQueue() *eventQueue {
	return &eventQueue{h: make(eventHeap, 0, 64)}
}

// push inserts rec into the queue.
func (q *eventQueue) push(rec *eventRecord) {
	q.mu.Lock()
	heap.Push(&q.h, rec)
	q.mu.Unlock()
}

// popMin removes and returns the lowest (time, seq) non-cancelled
// record, skipping (and discarding) any cancelled ones it encounters
// per spec.md 4.B ("pop_min() skips cancelled items").
func (q *eventQueue) popMin() (*eventRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.h.Len() > 0 {
		rec := heap.Pop(&q.h).(*eventRecord)
		if rec.cancelled.Load() {
			continue
		}
		return rec, true
	}
	return nil, false
}

// peek returns the lowest non-cancelled record without removing it.
// Cancelled head entries are popped and discarded as a side effect,
// same as popMin would do, so repeated Peek calls are cheap.
func (q *eventQueue) peek() (*eventRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.h.Len() > 0 {
		rec := q.h[0]
		if rec.cancelled.Load() {
			heap.Pop(&q.h)
			continue
		}
		return rec, true
	}
	return nil, false
}

// cancel marks h's underlying record cancelled, without removing it
// from the heap (spec.md 4.B). Returns false if h is empty/invalid.
func (q *eventQueue) cancel(h EventHandle) bool {
	if h.record == nil {
		return false
	}
	return h.record.cancelled.CompareAndSwap(false, true)
}

// size returns the number of entries still physically in the heap,
// including any not-yet-skipped cancelled ones.
func (q *eventQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// drain empties the queue, returning the records that were still
// pending (cancelled ones are dropped). Used by shutdown paths.
func (q *eventQueue) drain() []*eventRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*eventRecord, 0, q.h.Len())
	for q.h.Len() > 0 {
		rec := heap.Pop(&q.h).(*eventRecord)
		if !rec.cancelled.Load() {
			out = append(out, rec)
		}
	}
	return out
}
