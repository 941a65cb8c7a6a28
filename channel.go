package desim

import "sync"

// Channel is a synchronous (unbuffered) rendezvous primitive between
// entities: Send blocks until a matching Receive is waiting (or
// arrives), and vice versa (spec.md 4.H, "Channel"). It generalizes
// Suspend the same way PostContinuing and Sleep do, so a channel
// operation composes with everything else built on continuations
// (cancellation, nesting, timeouts via PostContinuingWithTimeout-style
// wrapping left to callers).
//
// Grounded on eventloop/promisify.go's fanOut, generalized from "notify
// every waiter of one resolution" to "pair exactly one sender with
// exactly one receiver, FIFO on each side".
type Channel[T any] struct {
	mu        sync.Mutex
	closed    bool
	senders   []chanWaiter[T]
	receivers []chanWaiter[T]
}

type chanWaiter[T any] struct {
	cont *continuation
}

// NewChannel constructs an empty, open Channel[T].
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{}
}

// Send blocks the calling fiber until a Receive consumes value, or the
// channel is closed (returning *ChannelClosedError either way a close
// happens to land).
func (ch *Channel[T]) Send(ctx *InvokeContext, value T) error {
	if err := ctx.checkFiberThread("Channel.Send"); err != nil {
		return err
	}

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return &ChannelClosedError{}
	}
	if len(ch.receivers) > 0 {
		w := ch.receivers[0]
		ch.receivers = ch.receivers[1:]
		ch.mu.Unlock()
		ctx.kernel.scheduleSelfReply(w.cont, 0, value, nil)
		return nil
	}
	ch.mu.Unlock()

	_, err := ctx.Suspend(func(k *continuation) {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		if ch.closed {
			k.tryResume(replyMessage{err: &ChannelClosedError{}})
			return
		}
		ch.senders = append(ch.senders, chanWaiter[T]{cont: k})
		// Stash value where the eventual receiver (or Close) can see it.
		k.pendingValue = value
	})
	return err
}

// Receive blocks the calling fiber until a Send offers a value, or the
// channel is closed.
func (ch *Channel[T]) Receive(ctx *InvokeContext) (T, error) {
	var zero T
	if err := ctx.checkFiberThread("Channel.Receive"); err != nil {
		return zero, err
	}

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return zero, &ChannelClosedError{}
	}
	if len(ch.senders) > 0 {
		w := ch.senders[0]
		ch.senders = ch.senders[1:]
		ch.mu.Unlock()
		ctx.kernel.scheduleSelfReply(w.cont, 0, nil, nil)
		v, _ := w.cont.pendingValue.(T)
		return v, nil
	}
	ch.mu.Unlock()

	value, err := ctx.Suspend(func(k *continuation) {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		if ch.closed {
			k.tryResume(replyMessage{err: &ChannelClosedError{}})
			return
		}
		ch.receivers = append(ch.receivers, chanWaiter[T]{cont: k})
	})
	if err != nil {
		return zero, err
	}
	v, _ := value.(T)
	return v, nil
}

// Close marks the channel closed and unparks every waiting sender and
// receiver with *ChannelClosedError. Close is idempotent.
func (ch *Channel[T]) Close(ctx *InvokeContext) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	senders := ch.senders
	receivers := ch.receivers
	ch.senders = nil
	ch.receivers = nil
	ch.mu.Unlock()

	for _, w := range senders {
		ctx.kernel.scheduleSelfReply(w.cont, 0, nil, &ChannelClosedError{})
	}
	for _, w := range receivers {
		ctx.kernel.scheduleSelfReply(w.cont, 0, nil, &ChannelClosedError{})
	}
}
