// Package client is the thin caller-side counterpart to internal/service: a
// wire Conn for talking to a smelt serve process over any io.ReadWriter, and
// an InProcess adapter for a CLI that embeds its own service.Service rather
// than dialing one (§4.10, "the client and service may share a process").
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/smeltrun/smelt/internal/protocol"
)

// Conn is a single client connection to a serving smelt process. One Do call
// is in flight at a time; events from all trace ids arrive on Events.
type Conn struct {
	rw io.ReadWriter

	writeMu sync.Mutex
	doMu    sync.Mutex

	resps  chan protocol.ClientResp
	events chan protocol.Event
	errs   chan error

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps rw and starts its background read loop. The caller is
// responsible for closing the underlying transport.
func NewConn(rw io.ReadWriter) *Conn {
	c := &Conn{
		rw:     rw,
		resps:  make(chan protocol.ClientResp),
		events: make(chan protocol.Event, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	for {
		event, resp, err := protocol.ReadAny(c.rw)
		if err != nil {
			select {
			case c.errs <- err:
			default:
			}
			close(c.done)
			close(c.events)
			return
		}
		switch {
		case event != nil:
			select {
			case c.events <- *event:
			case <-c.done:
				return
			}
		case resp != nil:
			select {
			case c.resps <- *resp:
			case <-c.done:
				return
			}
		}
	}
}

// Do sends cmd and waits for its synchronous ClientResp. It does not wait
// for any resulting invocation to finish; stream Events for that.
func (c *Conn) Do(ctx context.Context, cmd protocol.ClientCommand) (protocol.ClientResp, error) {
	c.doMu.Lock()
	defer c.doMu.Unlock()

	c.writeMu.Lock()
	err := protocol.WriteClientCommand(c.rw, cmd)
	c.writeMu.Unlock()
	if err != nil {
		return protocol.ClientResp{}, fmt.Errorf("write client command: %w", err)
	}

	select {
	case resp := <-c.resps:
		return resp, nil
	case err := <-c.errs:
		return protocol.ClientResp{}, err
	case <-ctx.Done():
		return protocol.ClientResp{}, ctx.Err()
	case <-c.done:
		return protocol.ClientResp{}, errors.New("connection closed")
	}
}

// Events returns the channel events for every invocation arrive on, in
// publish order. It is closed once the underlying connection errors or is
// closed.
func (c *Conn) Events() <-chan protocol.Event { return c.events }
