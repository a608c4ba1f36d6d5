package client

import (
	"context"

	"github.com/smeltrun/smelt/internal/protocol"
	"github.com/smeltrun/smelt/internal/service"
)

// InProcess dispatches directly against an embedded service.Service, with
// no wire framing, for a CLI that runs the service in its own process.
type InProcess struct {
	svc *service.Service
}

// NewInProcess wraps svc.
func NewInProcess(svc *service.Service) *InProcess {
	return &InProcess{svc: svc}
}

// Do dispatches cmd synchronously.
func (c *InProcess) Do(ctx context.Context, cmd protocol.ClientCommand) protocol.ClientResp {
	return c.svc.Dispatch(ctx, cmd)
}

// Stream returns a channel of every event published for traceID, closed
// once the invocation reaches Invoke.Done or ctx is cancelled. traceID must
// come from a just-returned InvokedResp; a trace id for a finished or
// unknown invocation yields an immediately-closed channel.
func (c *InProcess) Stream(ctx context.Context, traceID string) <-chan protocol.Event {
	out := make(chan protocol.Event, 64)
	bus, ok := c.svc.Events(traceID)
	if !ok {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		for {
			e, ok := bus.Consume(ctx)
			if !ok {
				return
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
			if e.IsInvokeDone() {
				return
			}
		}
	}()
	return out
}
