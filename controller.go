package desim

import "github.com/google/uuid"

// Controller is the shared surface of all three dispatch strategies
// (spec.md 4.G): SimulationController (run-to-completion), Stepping
// Controller (single-step), and RealTimeController (wall-clock bound).
// Grounded on eventloop/loop.go's Loop interface, generalized from
// "event loop with timers" to "virtual-time kernel with blocking
// entities".
type Controller interface {
	// Register adds an entity, returning its dense EntityID. If e
	// implements Binder, BindTo is called with this controller before
	// Register returns, so the entity can stash the controller for
	// later Post calls made outside of a dispatch (e.g. from a test's
	// setup code).
	Register(e Entity, name string) EntityID

	// Name returns the advisory name passed to Register, or "" if id is
	// unknown.
	Name(id EntityID) string

	// Entities returns every registered EntityID in registration order.
	Entities() []EntityID

	// SetName sets or overrides the controller's own advisory name.
	SetName(name string)

	// Now returns the controller's current virtual instant. Before the
	// first dispatch it is zero.
	Now() VirtualTime

	// Post schedules a non-blocking invocation of eventID on target at
	// the controller's current instant.
	Post(target EntityID, eventID EventID, args ...Value) (EventHandle, error)

	// PostAfter is Post, scheduled delay virtual-time units from now.
	PostAfter(delay VirtualDuration, target EntityID, eventID EventID, args ...Value) (EventHandle, error)

	// Cancel cancels a pending event before it dispatches. It has no
	// effect on an event that has already started dispatching, and is
	// safe to call from any goroutine.
	Cancel(h EventHandle) bool

	// TotalEvents returns the number of Invoke events dispatched so far.
	// Reply and timeout events that resume a parked caller are not
	// counted.
	TotalEvents() uint64

	// Spectrum returns the current per-(entity, signature) dispatch
	// counts, if spectrum tracking was enabled via WithSpectrumTracking;
	// otherwise it returns an empty slice.
	Spectrum() []SpectrumEntry

	// Report produces a snapshot summary of the run so far.
	Report() Report

	// Close moves the controller to Stopped and discards every pending
	// event; RealTimeController also stops its dispatch goroutine first.
	Close() error
}

// Report is a point-in-time summary of a controller's run, grounded on
// the kind of terminal run-summary struct the pack's load/perf tooling
// (e.g. psquare-style reporting) emits at the end of a run.
type Report struct {
	RunID         uuid.UUID
	Name          string
	Now           VirtualTime
	TotalEvents   uint64
	PendingEvents int
	Spectrum      []SpectrumEntry
	State         string

	// VirtualStart, VirtualEnd are the VirtualTime of the first and most
	// recent dispatch. Both are zero before the first dispatch.
	VirtualStart VirtualTime
	VirtualEnd   VirtualTime

	// SimulationStartMS, SimulationEndMS are wall-clock milliseconds
	// since epoch at the first and most recent dispatch. Both are zero
	// before the first dispatch.
	SimulationStartMS uint64
	SimulationEndMS   uint64
}

func (kn *kernel) report() Report {
	return Report{
		RunID:             kn.runID,
		Name:              kn.name,
		Now:               kn.clock.load(),
		TotalEvents:       kn.totalEvents.Load(),
		PendingEvents:     kn.queue.size(),
		Spectrum:          kn.spectrum.Snapshot(),
		State:             kn.state.load().String(),
		VirtualStart:      VirtualTime(kn.virtualStart.Load()),
		VirtualEnd:        VirtualTime(kn.virtualEnd.Load()),
		SimulationStartMS: kn.simulationStartMS.Load(),
		SimulationEndMS:   kn.simulationEndMS.Load(),
	}
}

// Register, Name, SetName, Now, Post, PostAfter, Cancel, TotalEvents,
// Spectrum, and Report are identical across all three controllers, so
// they're implemented once here on *kernel and promoted through each
// controller struct's embedded *kernel field.

func (kn *kernel) Register(e Entity, name string) EntityID {
	id := kn.entities.register(e, name)
	if b, ok := e.(Binder); ok {
		b.BindTo(kn.self)
	}
	return id
}

func (kn *kernel) Name(id EntityID) string { return kn.entities.name(id) }

func (kn *kernel) Entities() []EntityID { return kn.entities.all() }

func (kn *kernel) SetName(name string) { kn.name = name }

func (kn *kernel) Now() VirtualTime { return kn.clock.load() }

func (kn *kernel) Post(target EntityID, eventID EventID, args ...Value) (EventHandle, error) {
	return kn.post(target, eventID, args, kn.clock.load())
}

func (kn *kernel) PostAfter(delay VirtualDuration, target EntityID, eventID EventID, args ...Value) (EventHandle, error) {
	if delay < 0 {
		delay = 0
	}
	return kn.post(target, eventID, args, kn.clock.load()+VirtualTime(delay))
}

func (kn *kernel) Cancel(h EventHandle) bool { return kn.queue.cancel(h) }

func (kn *kernel) TotalEvents() uint64 { return kn.totalEvents.Load() }

func (kn *kernel) Spectrum() []SpectrumEntry { return kn.spectrum.Snapshot() }

func (kn *kernel) Report() Report { return kn.report() }
