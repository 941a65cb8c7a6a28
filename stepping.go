package desim

// SteppingController dispatches exactly one event at a time under
// explicit external control, intended for tests and debuggers that want
// to assert on intermediate state between events (spec.md 4.G,
// "Stepping"). Grounded on eventloop/loop.go's single-tick Step-style
// entry points used by the teacher's own tests.
type SteppingController struct {
	*kernel
}

// NewSteppingController constructs a stepping controller.
func NewSteppingController(opts ...Option) *SteppingController {
	cfg := resolveOptions(opts)
	c := &SteppingController{kernel: newKernel(cfg)}
	c.kernel.self = c
	return c
}

// Step dispatches a single event, returning false if the queue was
// empty (nothing to step). The controller moves Idle/Paused -> Running
// for the duration of the step, then back to Paused.
func (c *SteppingController) Step() bool {
	if !c.state.tryTransition(stateIdle, stateRunning) {
		if !c.state.tryTransition(statePaused, stateRunning) {
			return false
		}
	}
	ok := c.dispatchOne()
	c.state.tryTransition(stateRunning, statePaused)
	return ok
}

// StepUntil repeatedly calls Step until the queue is empty or the clock
// reaches (or passes) deadline, whichever comes first. Returns the
// number of events dispatched.
func (c *SteppingController) StepUntil(deadline VirtualTime) uint64 {
	var dispatched uint64
	for {
		rec, ok := c.queue.peek()
		if !ok || rec.time > deadline {
			return dispatched
		}
		if !c.Step() {
			return dispatched
		}
		dispatched++
	}
}

// EndSimulation stops the controller; further Step calls are no-ops.
func (c *SteppingController) EndSimulation() {
	c.state.store(stateStopped)
}

func (c *SteppingController) Close() error {
	c.state.store(stateStopped)
	c.queue.drain()
	return nil
}
