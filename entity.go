package desim

// EntityID is a stable, dense, ascending identifier assigned to an
// Entity at registration time (spec.md 3, "Entity").
type EntityID uint64

// EventID is a small non-negative integer identifying one method of an
// entity's class. Whether a given id is blocking or non-blocking is a
// property of the caller's choice of Post vs PostContinuing, not of the
// id itself; SignatureFor exists purely for diagnostics and the
// UnknownEvent check.
type EventID uint32

// Value is the dynamically-typed payload carried by events, arguments,
// and results — mirroring spec.md's "ordered list of values".
type Value = any

// Entity is a user-defined object whose methods are scheduled as
// discrete events. This is the dispatch ABI described in spec.md §6:
// a real implementation typically does not implement this interface by
// hand-writing a giant switch statement, but it is the minimal
// contract an entity proxy can target.
type Entity interface {
	// Invoke dispatches eventID with args, running synchronously on the
	// calling fiber. Implementations that need to block (await another
	// entity's reply, sleep, or use a Channel) call methods on ctx; doing
	// so suspends this goroutine without blocking the controller's
	// dispatch loop.
	//
	// A returned error is delivered to the blocking caller (if any) via
	// the reply path; for non-blocking dispatch it is logged and
	// swallowed (spec.md §7 policy for UserError).
	Invoke(ctx *InvokeContext, eventID EventID, args []Value) (Value, error)

	// SignatureFor returns a human-readable signature for eventID (e.g.
	// "square(int) int"), or "" if eventID is not recognized by this
	// entity, which the kernel surfaces as UnknownEventError.
	SignatureFor(eventID EventID) string
}

// Binder is implemented by entities that want a handle to the
// controller they're registered with at construction time, mirroring
// the "bind_to(controller)" hook of the dispatch ABI (spec.md §6). It is
// optional: Register calls BindTo if the entity implements it.
type Binder interface {
	BindTo(c Controller)
}
