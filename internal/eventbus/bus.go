// Package eventbus is the bounded, single-consumer event stream attached to
// one invocation (§4.2). It is grounded on pkg/bus's MessageBus — a mutex
// guarded struct with a closed flag and context-aware consume — but diverges
// from it in one deliberate way: pkg/bus silently drops publishes made after
// Close and drops nothing else, while this bus must never drop an event
// once an invocation has started, so Publish blocks (respecting ctx/cancel)
// until the bounded channel has room rather than discarding anything.
package eventbus

import (
	"context"

	"github.com/smeltrun/smelt/internal/protocol"
)

// Capacity is the fixed bound on buffered, unconsumed events per
// invocation, matching the original's mpsc::channel(100).
const Capacity = 100

// Bus is a bounded, FIFO, single-consumer event stream. One Bus exists per
// invocation. Publishers may be concurrent; only one goroutine should ever
// call Consume on a given Bus.
type Bus struct {
	ch     chan protocol.Event
	closed chan struct{}
}

// New creates a Bus with the fixed 100-event capacity.
func New() *Bus {
	return &Bus{
		ch:     make(chan protocol.Event, Capacity),
		closed: make(chan struct{}),
	}
}

// Publish delivers e, blocking until buffer space is available, ctx is
// done, or the bus is closed. It never drops e silently: a false return
// means the caller's context expired or the bus was already closed, and the
// caller is expected to treat that as a hard failure, not a best-effort
// send.
func (b *Bus) Publish(ctx context.Context, e protocol.Event) bool {
	select {
	case b.ch <- e:
		return true
	case <-b.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// Consume receives the next event, or returns ok=false if ctx is done
// before one arrives. Intended for a single consumer goroutine per Bus.
func (b *Bus) Consume(ctx context.Context) (protocol.Event, bool) {
	select {
	case e, ok := <-b.ch:
		if !ok {
			return protocol.Event{}, false
		}
		return e, true
	case <-ctx.Done():
		return protocol.Event{}, false
	}
}

// Close marks the bus closed, waking any blocked Publish calls. Consume does
// not watch the closed state: it keeps returning buffered events and is only
// woken early by its own ctx. Idempotent.
func (b *Bus) Close() {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
}
