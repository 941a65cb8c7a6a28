package desim

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// continuationStatus is the lifecycle of a parked continuation
// (spec.md 3, "Continuation"). Transitions are CAS-guarded exactly like
// eventloop/state.go's FastState, so a continuation is provably resumed
// (or cancelled) exactly once (spec.md invariant 3) even when a real
// reply races a timeout or an explicit Cancel.
type continuationStatus uint32

const (
	contParked continuationStatus = iota
	contResumable
	contDone
	contCancelled
)

// replyMessage is what unparks a continuation's fiber: either a value,
// an error (from user code or a kernel error type), or a cancellation.
type replyMessage struct {
	value     Value
	err       error
	cancelled bool
}

// continuation is a first-class, suspended computation representing
// "the rest of the caller's method from just after the blocking call
// site" (spec.md 3). One is created per in-flight blocking call
// (PostContinuing, Sleep, or Channel.Send/Receive).
type continuation struct {
	id uint64

	status atomic.Uint32 // continuationStatus

	// resumeCh delivers exactly one replyMessage, unblocking the fiber
	// parked in Suspend.
	resumeCh chan replyMessage

	// parent is the continuation (if any) that this one's fiber is
	// itself nested under, supporting the "stack of parked
	// continuations" composition described in spec.md 4.E.
	parent *continuation

	// pendingInvoke is the callee-side eventRecord this continuation is
	// waiting on, if the continuation was created by PostContinuing
	// (nil for Sleep and Channel parks, which have no callee Invoke
	// event to cancel). Cancelling the continuation before that event
	// dispatches also cancels it, so the callee's Invoke never runs —
	// the same "cancel before dispatch" guarantee spec.md scenario S4
	// describes for plain posted events.
	pendingInvoke *eventRecord

	// pendingValue stashes a Channel.Send's value between registration
	// and the matching Receive picking it up; Channel is generic but
	// continuation is not, so the value rides here as any and is
	// type-asserted back by Channel.Receive.
	pendingValue any

	// creationStack is the stack trace captured at the blocking call
	// site that created this continuation, when WithDebugMode is
	// enabled. Nil otherwise.
	creationStack []uintptr
}

var continuationIDCounter atomic.Uint64

func newContinuation(parent *continuation, debug bool) *continuation {
	k := &continuation{
		id:       continuationIDCounter.Add(1),
		resumeCh: make(chan replyMessage, 1),
		parent:   parent,
	}
	if debug {
		pcs := make([]uintptr, 32)
		n := runtime.Callers(2, pcs)
		if n > 0 {
			k.creationStack = pcs[:n]
		}
	}
	return k
}

// CreationStackTrace formats the stack captured when this continuation
// was created, one "package.function (file:line)" line per frame.
// Returns "" unless WithDebugMode was enabled at construction.
func (k *continuation) CreationStackTrace() string {
	if len(k.creationStack) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(k.creationStack)
	var out string
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			if out != "" {
				out += "\n"
			}
			out += fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return out
}

// tryResume attempts the single allowed Parked -> Resumable transition
// and, on success, delivers msg. Returns false if the continuation was
// already resumed or cancelled by a racing path (e.g. a timeout firing
// just as the real reply is dispatched) — the caller must then silently
// drop its message, matching spec.md 4.E's cancellation note ("any
// cancel racing an already-resumed k is a no-op").
func (k *continuation) tryResume(msg replyMessage) bool {
	if !k.status.CompareAndSwap(uint32(contParked), uint32(contResumable)) {
		return false
	}
	k.resumeCh <- msg
	return true
}

// cancel marks the continuation Cancelled and, if it is still Parked,
// unparks its fiber with a CancelledError. If the continuation has
// already moved past Parked, this is a no-op (races with an
// already-resumed continuation are defined as no-ops by spec.md 4.E).
func (k *continuation) cancel() bool {
	return k.cancelWithErr(&CancelledError{})
}

// cancelWithErr is cancel, but delivering a caller-chosen error instead
// of the default CancelledError — used by the timeout-on-blocking-call
// path (spec.md §5) to deliver a *TimeoutError instead.
func (k *continuation) cancelWithErr(err error) bool {
	if !k.status.CompareAndSwap(uint32(contParked), uint32(contCancelled)) {
		return false
	}
	if k.pendingInvoke != nil {
		k.pendingInvoke.cancelled.Store(true)
	}
	k.resumeCh <- replyMessage{err: err, cancelled: true}
	return true
}

// fiberSignalKind distinguishes the two ways a fiber goroutine can hand
// control back to the dispatcher.
type fiberSignalKind uint8

const (
	fiberParked fiberSignalKind = iota
	fiberDone
)

// fiberSignal is sent on kernel.fiberEvents by the fiber goroutine that
// is currently "live" (either freshly started for an Invoke, or resumed
// after a reply). Because the dispatcher blocks on this channel between
// starting/resuming a fiber and receiving its next signal, at most one
// fiber is ever actually executing Go code for a given kernel at a time
// — strictly stronger than, and so implying, spec.md invariant 5 ("an
// entity may have at most one actively executing frame at a time").
type fiberSignal struct {
	kind fiberSignalKind

	// valid when kind == fiberParked: the continuation the fiber just
	// parked on (already registered with whatever it's waiting on).
	parked *continuation

	// valid when kind == fiberDone: the Invoke event this fiber was
	// started for (identifies who, if anyone, the reply goes to) and
	// the value/error Invoke returned.
	originRec *eventRecord
	value     Value
	err       error
}

// Suspend is the single primitive behind every blocking operation
// (PostContinuing, Sleep, Channel.Send/Receive). It must be called from
// the goroutine currently executing a dispatched event (ctx's fiber);
// calling it from any other goroutine is IllegalState (spec.md 4.G,
// "Failure semantics").
//
// register is invoked synchronously, before control is handed back to
// the dispatcher, so that whatever register does (enqueue the callee's
// Invoke event, append to a Channel's wait queue, schedule a delayed
// self-reply) is visible immediately — this is what makes Suspend a
// faithful unwind-to-dispatcher rather than a real OS-thread block.
func (ctx *InvokeContext) Suspend(register func(k *continuation)) (Value, error) {
	if err := ctx.checkFiberThread("blocking call"); err != nil {
		return nil, err
	}

	k := newContinuation(ctx.continuation, ctx.kernel.debug)
	register(k)

	ctx.fiberEvents <- fiberSignal{kind: fiberParked, parked: k}

	msg := <-k.resumeCh
	k.status.Store(uint32(contDone))

	// The entity's method continues running here, still on the same
	// fiber goroutine. Record k as the continuation most recently
	// resumed on this ctx, so a subsequent (nested) Suspend call chains
	// its parent pointer through it.
	ctx.continuation = k

	if msg.err != nil {
		return nil, msg.err
	}
	return msg.value, nil
}
