package desim

// dispatchOne pops and fully processes the single lowest (time, seq)
// event, including driving whichever fiber it starts or resumes until
// that fiber yields (parks on a new continuation) or completes. It
// returns false when the queue was empty.
//
// Grounded on eventloop/loop.go's tick/runTimers dispatch step,
// generalized from "fire due timers" to "advance the clock to the next
// event and run exactly one fiber-step".
func (kn *kernel) dispatchOne() bool {
	rec, ok := kn.queue.popMin()
	if !ok {
		return false
	}
	kn.clock.store(rec.time)
	kn.markDispatch(rec.time)

	switch rec.kind {
	case kindInvoke:
		kn.totalEvents.Add(1)
		kn.spectrum.incrementIfTracking(SpectrumKey{
			Entity:    kn.entities.name(rec.target),
			Signature: kn.entitySignature(rec.target, rec.eventID),
		})
		if kn.prom != nil {
			kn.prom.Sync(kn.spectrum.Snapshot())
		}
		kn.spawnFiber(rec)
		kn.pumpFiber()

	case kindReply:
		if rec.caller != nil && rec.caller.tryResume(replyMessage{value: rec.replyValue, err: rec.replyErr}) {
			kn.pumpFiber()
		}

	case kindTimeout:
		if rec.caller != nil && rec.caller.cancelWithErr(rec.replyErr) {
			if kn.debug {
				kn.log(LevelDebug, "post_continuing timed out", map[string]any{
					"after":          rec.replyErr,
					"creation_stack": rec.caller.CreationStackTrace(),
				})
			}
			kn.pumpFiber()
		}
	}

	return true
}

// spawnFiber starts the goroutine that runs one dispatched Invoke to
// completion (or its first park). Grounded on eventloop/promisify.go's
// Promisify, which spawns exactly this kind of one-shot worker
// goroutine bound to a single resolution channel.
func (kn *kernel) spawnFiber(rec *eventRecord) {
	entity, ok := kn.entities.lookup(rec.target)
	if !ok {
		// Validated at post time; a missing entity here would mean it
		// was somehow deregistered, which spec.md 3 says never happens.
		kn.fiberEvents <- fiberSignal{kind: fiberDone, originRec: rec, err: &UnknownEventError{Entity: rec.target, Event: rec.eventID}}
		return
	}

	ctx := &InvokeContext{
		kernel:      kn,
		fiberEvents: kn.fiberEvents,
		self:        rec.target,
		eventID:     rec.eventID,
	}

	go func() {
		ctx.goroutineID = getGoroutineID()
		value, err := kn.runInvoke(entity, ctx, rec)
		ctx.done.Store(true)
		kn.fiberEvents <- fiberSignal{kind: fiberDone, originRec: rec, value: value, err: err}
	}()
}

// runInvoke calls e.Invoke, converting any panic into a *PanicError
// (spec.md §5, "a panicking Invoke is equivalent to returning a
// PanicError to its caller").
func (kn *kernel) runInvoke(e Entity, ctx *InvokeContext, rec *eventRecord) (value Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return e.Invoke(ctx, rec.eventID, rec.args)
}

// pumpFiber waits for exactly one signal from whichever fiber the
// caller just started or resumed. A fiberParked signal means the fiber
// yielded control back to the dispatcher and nothing further happens
// this dispatch cycle; a fiberDone signal means the fiber's Invoke
// returned (normally or via panic) and its reply, if any, is scheduled
// now — after the fiber's own nextSeq calls have all already happened,
// satisfying spec.md invariant 1 (a reply's seq always exceeds anything
// its callee scheduled).
func (kn *kernel) pumpFiber() {
	sig := <-kn.fiberEvents
	if sig.kind == fiberParked {
		return
	}

	rec := sig.originRec
	if rec.caller != nil {
		kn.scheduleSelfReply(rec.caller, 0, sig.value, sig.err)
		return
	}
	if sig.err != nil {
		kn.reportUserError(rec.target, rec.eventID, sig.err)
	}
}

// reportUserError is the fallback for an entity error that has no
// caller to propagate to (a plain Post, not a PostContinuing).
func (kn *kernel) reportUserError(entity EntityID, eventID EventID, err error) {
	ue := &UserError{Entity: entity, Event: eventID, Cause: err}
	if kn.onUserError != nil {
		kn.onUserError(entity, eventID, err)
		return
	}
	kn.log(LevelError, "unhandled entity error", map[string]any{
		"entity": entity,
		"event":  eventID,
		"error":  ue,
	})
}
