package desim

import "sync/atomic"

// loopState is the controller-level lifecycle (spec.md 4.G: "Idle ->
// Running -> (Paused | Stopped)"), distinct from continuationStatus
// (which tracks one parked call, not the whole controller). CAS-guarded
// exactly like eventloop/state.go's FastState, so concurrent Start/Stop
// calls from outside the dispatcher can never race each other into
// an inconsistent transition.
type loopState uint32

const (
	stateIdle loopState = iota
	stateRunning
	statePaused
	stateStopped
)

func (s loopState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case statePaused:
		return "paused"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// fastState wraps an atomic.Uint32 lifecycle with CAS transitions,
// grounded on eventloop/state.go's FastState.TryTransition.
type fastState struct {
	v atomic.Uint32
}

func newFastState(initial loopState) *fastState {
	fs := &fastState{}
	fs.v.Store(uint32(initial))
	return fs
}

func (fs *fastState) load() loopState {
	return loopState(fs.v.Load())
}

// tryTransition attempts from -> to, succeeding only if the current
// state is exactly from.
func (fs *fastState) tryTransition(from, to loopState) bool {
	return fs.v.CompareAndSwap(uint32(from), uint32(to))
}

// store unconditionally sets the state (used for the Stopped terminal
// transition, which is allowed from any prior state).
func (fs *fastState) store(to loopState) {
	fs.v.Store(uint32(to))
}
