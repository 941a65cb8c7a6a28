package desim

// SimulationController runs a simulation to completion as fast as
// possible, with no wall-clock pacing (spec.md 4.G, "Batch"). This is
// the controller used by most tests.
type SimulationController struct {
	*kernel
}

// NewSimulationController constructs a batch controller.
func NewSimulationController(opts ...Option) *SimulationController {
	cfg := resolveOptions(opts)
	c := &SimulationController{kernel: newKernel(cfg)}
	c.kernel.self = c
	return c
}

// Run dispatches events until the queue is empty or ctx-equivalent
// EndSimulation-style stop condition is met, whichever comes first.
// Returns the number of events dispatched in this call.
//
// Grounded on eventloop/loop.go's Run, generalized from "run until no
// timers or pending work remain" to "run until the event queue is
// empty".
func (c *SimulationController) Run() uint64 {
	if !c.state.tryTransition(stateIdle, stateRunning) {
		c.state.tryTransition(statePaused, stateRunning)
	}

	var dispatched uint64
	for c.state.load() == stateRunning {
		if !c.dispatchOne() {
			break
		}
		dispatched++
	}

	if c.state.load() == stateRunning {
		c.state.store(stateStopped)
	}
	return dispatched
}

// RunUntil dispatches events until the queue is empty or the clock
// reaches (or passes) deadline, whichever comes first. Either way the
// controller is left Paused (not Stopped), so further Posts are accepted
// and a subsequent RunUntil/Run can resume it.
func (c *SimulationController) RunUntil(deadline VirtualTime) uint64 {
	if !c.state.tryTransition(stateIdle, stateRunning) {
		c.state.tryTransition(statePaused, stateRunning)
	}

	var dispatched uint64
	for c.state.load() == stateRunning {
		rec, ok := c.queue.peek()
		if !ok || rec.time > deadline {
			c.state.tryTransition(stateRunning, statePaused)
			break
		}
		if !c.dispatchOne() {
			break
		}
		dispatched++
	}
	return dispatched
}

// EndSimulation stops the controller; any further Post/PostContinuing
// calls fail with ErrLoopNotRunning.
func (c *SimulationController) EndSimulation() {
	c.state.store(stateStopped)
}

func (c *SimulationController) Close() error {
	c.state.store(stateStopped)
	c.queue.drain()
	return nil
}
