// Package service is the Command Graph Service (§4.9/§4.10): it owns the
// currently-installed command.Set, the shared executor/admission pool, and
// dispatches ClientCommands onto fresh per-invocation graph.Graph
// transactions, each with its own eventbus.Bus event stream.
//
// The mutex-guarded struct shape is grounded on pkg/runbook.Engine's
// directory-owning, mutex-guarded struct plus os.Getenv-style bootstrap.
// There is no request queue or command loop: Dispatch handles each
// ClientCommand inline on the caller's goroutine, and an RWMutex guards the
// installed set, so a SetCommands swap does not affect invocations that
// already took their copy of the previous set.
package service

import (
	"context"
	"os/user"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/smeltrun/smelt/internal/command"
	"github.com/smeltrun/smelt/internal/eventbus"
	"github.com/smeltrun/smelt/internal/executor"
	"github.com/smeltrun/smelt/internal/graph"
	"github.com/smeltrun/smelt/internal/protocol"
	"github.com/smeltrun/smelt/internal/smelterr"
)

// Service is the long-lived command graph service for one process.
type Service struct {
	root string
	cfg  protocol.ConfigureSmelt
	exec executor.Executor

	mu        sync.RWMutex
	set       *command.Set
	admission *executor.Admission

	busesMu sync.Mutex
	buses   map[string]*eventbus.Bus
}

// New builds a Service with no command set installed yet, from the full
// effective configuration (§6): cfg.JobSlots sizes the admission pool
// shared by every invocation, and cfg itself is echoed back verbatim by
// GetConfig.
func New(cfg protocol.ConfigureSmelt, exec executor.Executor) *Service {
	jobSlots := int64(cfg.JobSlots)
	if jobSlots <= 0 {
		jobSlots = int64(runtime.NumCPU())
	}
	return &Service{
		root:      cfg.SmeltRoot,
		cfg:       cfg,
		exec:      exec,
		admission: executor.NewAdmission(jobSlots),
		buses:     make(map[string]*eventbus.Bus),
	}
}

// Dispatch handles one ClientCommand and returns its synchronous reply. For
// Run* commands, the reply carries the trace id the caller should use to
// read the invocation's event stream via Events.
func (s *Service) Dispatch(ctx context.Context, cmd protocol.ClientCommand) protocol.ClientResp {
	switch {
	case cmd.SetCommands != nil:
		return s.setCommands(cmd.SetCommands.CommandContent)
	case cmd.RunOne != nil:
		return s.invoke(ctx, []string{cmd.RunOne.CommandName})
	case cmd.RunMany != nil:
		return s.invoke(ctx, cmd.RunMany.CommandNames)
	case cmd.RunType != nil:
		return s.invokeType(ctx, command.TargetType(cmd.RunType.TypeInfo))
	case cmd.GetConfig != nil:
		cfg := s.cfg
		return protocol.ClientResp{Config: &cfg}
	default:
		return errorResp(smelterr.NewClient("empty client command"))
	}
}

func errorResp(e *smelterr.Error) protocol.ClientResp {
	return protocol.ClientResp{Error: e.Event().Error}
}

func (s *Service) setCommands(content string) protocol.ClientResp {
	set, err := command.ParseSet([]byte(content))
	if err != nil {
		ve := smelterr.NewValidate("%v", err)
		s.publishUnscoped(ve.Event())
		return protocol.ClientResp{CommandSettingFailed: &protocol.CommandSettingFailedResp{Count: 1}}
	}

	s.mu.Lock()
	s.set = set
	s.mu.Unlock()

	return protocol.ClientResp{CommandSettingOK: &protocol.CommandSettingOKResp{Count: set.Len()}}
}

func (s *Service) invokeType(ctx context.Context, t command.TargetType) protocol.ClientResp {
	s.mu.RLock()
	set := s.set
	s.mu.RUnlock()
	if set == nil {
		return s.noCommandSetReply()
	}
	return s.invoke(ctx, set.ByTargetType(t))
}

func (s *Service) invoke(ctx context.Context, names []string) protocol.ClientResp {
	s.mu.RLock()
	set := s.set
	s.mu.RUnlock()
	if set == nil {
		return s.noCommandSetReply()
	}

	traceID := uuid.New().String()
	bus := eventbus.New()
	s.busesMu.Lock()
	s.buses[traceID] = bus
	s.busesMu.Unlock()

	go s.runInvocation(set, bus, traceID, names)

	return protocol.ClientResp{Invoked: &protocol.InvokedResp{TraceID: traceID}}
}

func (s *Service) noCommandSetReply() protocol.ClientResp {
	return errorResp(smelterr.NewClient("no command set installed"))
}

// runInvocation is the detached task that runs a transaction end to end:
// Invoke.Start, one graph.Graph computing every requested name
// concurrently, Invoke.Done.
func (s *Service) runInvocation(set *command.Set, bus *eventbus.Bus, traceID string, names []string) {
	defer func() {
		bus.Publish(context.Background(), protocol.InvokeDoneEvent(traceID))
		s.busesMu.Lock()
		delete(s.buses, traceID)
		s.busesMu.Unlock()
	}()

	bus.Publish(context.Background(), protocol.InvokeStartEvent(traceID, invokeStart(s.root)))

	g := graph.New(set, s.exec, s.admission, bus, s.root, traceID)

	var wg sync.WaitGroup
	wg.Add(len(names))
	for _, name := range names {
		name := name
		go func() {
			defer wg.Done()
			if _, err := g.Compute(context.Background(), name); err != nil {
				ie := smelterr.NewInternal(traceID, err, "compute %q", name)
				bus.Publish(context.Background(), ie.Event())
			}
		}()
	}
	wg.Wait()
}

func invokeStart(root string) protocol.InvokeStart {
	start := protocol.InvokeStart{SmeltRoot: root}
	if u, err := user.Current(); err == nil {
		start.Username = u.Username
	}
	return start
}

// publishUnscoped delivers an event that has no associated transaction bus
// (e.g. a command-set validation failure, which happens before any
// invocation exists) to every currently-open bus, so a client streaming any
// invocation still observes it.
func (s *Service) publishUnscoped(e protocol.Event) {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	for _, bus := range s.buses {
		bus.Publish(context.Background(), e)
	}
}

// Events returns the event bus for a running invocation's trace id, if one
// is still open.
func (s *Service) Events(traceID string) (*eventbus.Bus, bool) {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	b, ok := s.buses[traceID]
	return b, ok
}
