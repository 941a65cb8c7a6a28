package desim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// kernel is the shared core embedded by all three controller variants
// (SimulationController, SteppingController, RealTimeController). It
// owns the clock, the event queue, the entity registry, and the single
// fiberEvents handoff channel that makes dispatch effectively
// single-threaded (spec.md 4.G, 4.E).
//
// Grounded on eventloop/loop.go's loop struct, which plays the same role
// for the teacher's event loop: one struct holding the timer heap, the
// registries, and the channels the public Loop/LoopContext wrapper types
// delegate to.
type kernel struct {
	runID uuid.UUID
	name  string

	// self is the concrete Controller (SimulationController,
	// SteppingController, or RealTimeController) embedding this kernel,
	// set by that controller's constructor immediately after creation.
	// It exists solely so Register can hand entities implementing Binder
	// a stable Controller reference.
	self Controller

	clock    clock
	queue    *eventQueue
	entities *entityRegistry

	fiberEvents chan fiberSignal

	// wake is non-blockingly signalled whenever post, scheduleSelfReply
	// or scheduleTimeout pushes an event onto queue, so
	// RealTimeController's wall-clock wait can be interrupted instead of
	// sleeping past a just-arrived earlier event. PostContinuing pushes
	// without signalling; it only runs inside a dispatch, after which the
	// real-time loop peeks the queue again anyway.
	wake chan struct{}

	logger          Logger
	spectrum        *Spectrum
	state           *fastState
	onUserError     func(entity EntityID, eventID EventID, err error)
	debug           bool
	totalEvents     atomic.Uint64
	prom            *PrometheusExporter
	realTimeRate    float64

	// startOnce guards virtualStart/simulationStartMS, set from the first
	// ever dispatchOne call. virtualEnd/simulationEndMS are instead
	// overwritten on every dispatchOne call, so they always hold the
	// values as of the most recent dispatch (spec.md 4.I, §6 "Report
	// record").
	startOnce         sync.Once
	virtualStart      atomic.Int64
	virtualEnd        atomic.Int64
	simulationStartMS atomic.Uint64
	simulationEndMS   atomic.Uint64
}

func newKernel(cfg kernelConfig) *kernel {
	return &kernel{
		runID:        uuid.New(),
		name:         cfg.name,
		queue:        newEventQueue(),
		entities:     newEntityRegistry(),
		fiberEvents:  make(chan fiberSignal),
		wake:         make(chan struct{}, 1),
		logger:       cfg.logger,
		spectrum:     newSpectrum(cfg.spectrumEnabled),
		state:        newFastState(stateIdle),
		onUserError:  cfg.onUserError,
		debug:        cfg.debug,
		realTimeRate: cfg.realTimeRate,
		prom:         cfg.prom,
	}
}

// entitySignature returns e's declared signature for eventID, or "" if
// target is unregistered or does not recognise eventID (spec.md 4.C,
// "unknown events are a post-time error, not a dispatch-time panic").
func (kn *kernel) entitySignature(target EntityID, eventID EventID) string {
	e, ok := kn.entities.lookup(target)
	if !ok {
		return ""
	}
	return e.SignatureFor(eventID)
}

// post validates and enqueues a plain (non-blocking) Invoke at virtual
// instant at.
func (kn *kernel) post(target EntityID, eventID EventID, args []Value, at VirtualTime) (EventHandle, error) {
	if kn.state.load() == stateStopped {
		return EventHandle{}, ErrLoopNotRunning
	}
	if kn.entitySignature(target, eventID) == "" {
		return EventHandle{}, &UnknownEventError{Entity: target, Event: eventID}
	}
	rec := &eventRecord{
		time:    at,
		seq:     kn.clock.nextSeq(),
		kind:    kindInvoke,
		target:  target,
		eventID: eventID,
		args:    args,
	}
	kn.queue.push(rec)
	kn.notifyWake()
	return EventHandle{record: rec}, nil
}

// notifyWake pings wake without blocking; a pending unread ping already
// covers any new arrival, so a full channel is not an error.
func (kn *kernel) notifyWake() {
	select {
	case kn.wake <- struct{}{}:
	default:
	}
}

// scheduleSelfReply posts a kindReply event carrying value/err, destined
// directly for cont with no intervening callee Invoke. This is how Sleep
// is implemented (spec.md §5: "sleep(d) is post_continuing targeting a
// self-reply after delay") and how a callee's fiber completion is turned
// into a reply to its caller (dispatch.go).
func (kn *kernel) scheduleSelfReply(cont *continuation, delay VirtualDuration, value Value, err error) {
	now := kn.clock.load()
	rec := &eventRecord{
		time:       now + VirtualTime(delay),
		seq:        kn.clock.nextSeq(),
		kind:       kindReply,
		caller:     cont,
		replyValue: value,
		replyErr:   err,
	}
	kn.queue.push(rec)
	kn.notifyWake()
}

// scheduleTimeout posts a kindTimeout event that, if it dispatches
// before cont's real reply, cancels cont's outstanding callee Invoke (if
// it hasn't started yet) and resumes cont's fiber with err (spec.md §5,
// "Timeouts on blocking calls"). If the real reply wins the race, this
// event's dispatch becomes a no-op via continuation's CAS lifecycle
// (spec.md invariant 3).
func (kn *kernel) scheduleTimeout(cont *continuation, delay VirtualDuration, err error) {
	now := kn.clock.load()
	rec := &eventRecord{
		time:     now + VirtualTime(delay),
		seq:      kn.clock.nextSeq(),
		kind:     kindTimeout,
		caller:   cont,
		replyErr: err,
	}
	kn.queue.push(rec)
	kn.notifyWake()
}

// markDispatch records the virtual and wall-clock instants of a dispatch
// at virtual time t: virtualStart/simulationStartMS are latched once,
// from the first call; virtualEnd/simulationEndMS are overwritten every
// call, so they track the most recent dispatch (spec.md 4.I, §6 "Report
// record").
func (kn *kernel) markDispatch(t VirtualTime) {
	nowMS := uint64(time.Now().UnixMilli())
	kn.startOnce.Do(func() {
		kn.virtualStart.Store(int64(t))
		kn.simulationStartMS.Store(nowMS)
	})
	kn.virtualEnd.Store(int64(t))
	kn.simulationEndMS.Store(nowMS)
}

func (kn *kernel) log(level LogLevel, msg string, fields map[string]any) {
	if kn.logger != nil {
		kn.logger.Log(level, msg, fields)
	}
}
