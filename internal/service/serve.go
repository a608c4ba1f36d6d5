package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/smeltrun/smelt/internal/protocol"
)

// ServeConn pumps one client connection against svc: it reads
// ClientCommand frames, dispatches each synchronously, writes back the
// ClientResp, and for any reply carrying a trace id it forwards that
// invocation's Event stream over the same connection until Invoke.Done.
// It returns when rw is closed (io.EOF) or ctx is cancelled.
func ServeConn(ctx context.Context, rw io.ReadWriter, svc *Service) error {
	var writeMu sync.Mutex
	writeResp := func(resp protocol.ClientResp) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return protocol.WriteClientResp(rw, resp)
	}
	writeEvent := func(e protocol.Event) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return protocol.WriteEvent(rw, e)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		cmd, err := protocol.ReadClientCommand(rw)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		resp := svc.Dispatch(ctx, cmd)
		if err := writeResp(resp); err != nil {
			return err
		}

		if resp.Invoked != nil {
			wg.Add(1)
			go func(traceID string) {
				defer wg.Done()
				forwardEvents(ctx, svc, traceID, writeEvent)
			}(resp.Invoked.TraceID)
		}
	}
}

// forwardEvents relays every event published on traceID's bus until
// Invoke.Done or ctx is cancelled.
func forwardEvents(ctx context.Context, svc *Service, traceID string, writeEvent func(protocol.Event) error) {
	bus, ok := svc.Events(traceID)
	if !ok {
		return
	}
	for {
		e, ok := bus.Consume(ctx)
		if !ok {
			return
		}
		if err := writeEvent(e); err != nil {
			return
		}
		if e.IsInvokeDone() {
			return
		}
	}
}
