package desim

import "sync/atomic"

// InvokeContext is handed to Entity.Invoke for the duration of one
// dispatch, and is the only way an entity (or its proxy) can reach the
// blocking primitives. The blocking primitives (PostContinuing,
// PostContinuingWithTimeout, Sleep, Suspend, Channel.Send/Receive)
// return an IllegalStateError when called from any goroutine other than
// the fiber it belongs to, or after Invoke has returned; Now, Self, Post,
// PostAfter and Cancel do not check.
type InvokeContext struct {
	kernel      *kernel
	fiberEvents chan fiberSignal
	goroutineID uint64

	// continuation is nil for a fresh top-level Invoke, or the
	// continuation that most recently resumed this fiber (used as the
	// parent of the next continuation this fiber parks on).
	continuation *continuation

	// self identifies the entity currently being dispatched, for
	// diagnostics (error messages, logging) and Channel/Sleep plumbing.
	self    EntityID
	eventID EventID

	done atomic.Bool
}

// checkFiberThread validates that the calling goroutine is the one this
// ctx was handed to, and that the dispatch it belongs to hasn't already
// returned. Grounded on eventloop/loop.go's getGoroutineID/isLoopThread
// thread-affinity check, generalized from "is this the loop goroutine"
// to "is this the specific fiber goroutine ctx belongs to".
func (ctx *InvokeContext) checkFiberThread(op string) error {
	if ctx.done.Load() {
		return &IllegalStateError{Reason: op + ": InvokeContext used after its dispatch returned"}
	}
	if getGoroutineID() != ctx.goroutineID {
		return &IllegalStateError{Reason: op + ": called outside the dispatching fiber's goroutine"}
	}
	return nil
}

// Now returns the controller's current virtual instant.
func (ctx *InvokeContext) Now() VirtualTime { return ctx.kernel.clock.load() }

// Self returns the EntityID currently being dispatched.
func (ctx *InvokeContext) Self() EntityID { return ctx.self }

// Post schedules a non-blocking invocation of eventID on target,
// returning an EventHandle usable with Cancel. It never suspends the
// calling fiber.
func (ctx *InvokeContext) Post(target EntityID, eventID EventID, args ...Value) (EventHandle, error) {
	return ctx.kernel.post(target, eventID, args, ctx.kernel.clock.load())
}

// PostAfter is Post, scheduled delay virtual-time units from now.
func (ctx *InvokeContext) PostAfter(delay VirtualDuration, target EntityID, eventID EventID, args ...Value) (EventHandle, error) {
	if delay < 0 {
		delay = 0
	}
	return ctx.kernel.post(target, eventID, args, ctx.kernel.clock.load()+VirtualTime(delay))
}

// PostContinuing performs a blocking call to eventID on target: it
// suspends the calling fiber until target's Invoke returns (or panics),
// yielding virtual time to the rest of the simulation, and returns
// exactly what target's Invoke returned (spec.md testable property 5:
// round-trip value/exception fidelity).
func (ctx *InvokeContext) PostContinuing(target EntityID, eventID EventID, args ...Value) (Value, error) {
	if err := ctx.checkFiberThread("PostContinuing"); err != nil {
		return nil, err
	}
	if ctx.kernel.state.load() == stateStopped {
		return nil, ErrLoopNotRunning
	}
	if _, ok := ctx.kernel.entities.lookup(target); ok {
		if ctx.kernel.entitySignature(target, eventID) == "" {
			return nil, &UnknownEventError{Entity: target, Event: eventID}
		}
	} else {
		return nil, &UnknownEventError{Entity: target, Event: eventID}
	}

	return ctx.Suspend(func(k *continuation) {
		now := ctx.kernel.clock.load()
		rec := &eventRecord{
			time:    now,
			seq:     ctx.kernel.clock.nextSeq(),
			kind:    kindInvoke,
			target:  target,
			eventID: eventID,
			args:    args,
			caller:  k,
		}
		k.pendingInvoke = rec
		ctx.kernel.queue.push(rec)
	})
}

// PostContinuingWithTimeout is PostContinuing bounded by a companion
// timeout event (spec.md §5, "Timeouts on blocking calls"): if timeout
// elapses (in virtual time) before the real reply arrives, the call
// returns a *TimeoutError instead.
func (ctx *InvokeContext) PostContinuingWithTimeout(timeout VirtualDuration, target EntityID, eventID EventID, args ...Value) (Value, error) {
	if err := ctx.checkFiberThread("PostContinuingWithTimeout"); err != nil {
		return nil, err
	}
	if ctx.kernel.entitySignature(target, eventID) == "" {
		return nil, &UnknownEventError{Entity: target, Event: eventID}
	}

	return ctx.Suspend(func(k *continuation) {
		now := ctx.kernel.clock.load()
		rec := &eventRecord{
			time:    now,
			seq:     ctx.kernel.clock.nextSeq(),
			kind:    kindInvoke,
			target:  target,
			eventID: eventID,
			args:    args,
			caller:  k,
		}
		k.pendingInvoke = rec
		ctx.kernel.queue.push(rec)

		// Companion timeout: a self-contained Reply event that, if
		// popped before the real reply, resolves k with TimeoutError.
		// If the real reply wins the race, k.tryResume's CAS makes this
		// one a no-op (spec.md invariant 3).
		ctx.kernel.scheduleTimeout(k, timeout, &TimeoutError{After: timeout})
	})
}

// Sleep suspends the calling fiber for delay virtual-time units,
// implemented exactly as spec.md §5 describes: "post_continuing
// targeting a self-reply after delay".
func (ctx *InvokeContext) Sleep(delay VirtualDuration) error {
	if err := ctx.checkFiberThread("Sleep"); err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}
	_, err := ctx.Suspend(func(k *continuation) {
		ctx.kernel.scheduleSelfReply(k, delay, nil, nil)
	})
	return err
}

// Cancel cancels a pending event (posted via Post/PostAfter) before it
// dispatches. It has no effect once the event has already started
// dispatching.
func (ctx *InvokeContext) Cancel(h EventHandle) bool {
	return ctx.kernel.queue.cancel(h)
}
