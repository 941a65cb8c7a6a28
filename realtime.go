package desim

import (
	"sync"
	"time"
)

// RealTimeController binds virtual time to wall-clock time at a
// configurable rate (spec.md 4.G, "RealTime"): the event due at virtual
// instant t is dispatched at approximately epoch + (t-t0)/rate wall-clock
// time, rather than as fast as possible.
//
// Wakeup is channel-based rather than OS-poller-based: the dispatch
// goroutine sleeps on a time.Timer sized to the next due event, and is
// interrupted early via kernel.wake whenever a new, possibly-earlier
// event is posted. This follows the teacher's own documented preference
// for a plain channel-select wakeup over a platform poller when no
// actual file-descriptor readiness is involved.
type RealTimeController struct {
	*kernel

	rate  float64
	epoch time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewRealTimeController constructs a real-time controller. Use
// WithRealTimeRate to run faster or slower than 1:1.
func NewRealTimeController(opts ...Option) *RealTimeController {
	cfg := resolveOptions(opts)
	c := &RealTimeController{
		kernel: newKernel(cfg),
		rate:   cfg.realTimeRate,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	c.kernel.self = c
	return c
}

// Start begins wall-clock-paced dispatch in a background goroutine. It
// is a no-op if already running.
func (c *RealTimeController) Start() {
	if !c.state.tryTransition(stateIdle, stateRunning) {
		if !c.state.tryTransition(statePaused, stateRunning) {
			return
		}
	}
	c.epoch = time.Now()
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go c.run()
}

func (c *RealTimeController) run() {
	defer close(c.doneCh)
	t0 := c.clock.load()
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		rec, ok := c.queue.peek()
		if !ok {
			select {
			case <-c.wake:
				continue
			case <-c.stopCh:
				return
			}
		}

		wallDelta := time.Until(c.epoch.Add(time.Duration(float64(rec.time-t0) / c.rate)))
		if wallDelta < 0 {
			wallDelta = 0
		}
		timer := time.NewTimer(wallDelta)
		select {
		case <-timer.C:
			c.dispatchOne()
		case <-c.wake:
			timer.Stop()
		case <-c.stopCh:
			timer.Stop()
			return
		}
	}
}

// Stop cooperatively halts dispatch: in-flight fibers are allowed to
// finish their current step, but no further events are dispatched. Stop
// is idempotent and safe to call from any goroutine. Grounded on the
// cooperative-cancellation shape of an AbortSignal (cancel once,
// observed by a select everywhere that blocks).
func (c *RealTimeController) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.doneCh
	}
	c.state.store(stateStopped)
}

func (c *RealTimeController) Close() error {
	c.Stop()
	c.queue.drain()
	return nil
}
