// Package graph is Smelt's keyed, memoizing computation graph (§4.8): one
// Graph exists per invocation ("transaction"); every command name resolves
// to at most one in-flight computation regardless of how many other
// commands depend on it (diamond dependencies run once), and a failed,
// errored, or skipped dependency propagates as Skipped to its dependents
// without ever invoking their executor.
//
// The per-name in-flight future and errgroup-based concurrent dependency
// await are grounded on
// other_examples/a24610f2_oriys-nova__internal-executor-executor.go.go's
// errgroup.WithContext prefetch pattern and its inflight/closing
// bookkeeping style.
package graph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/smeltrun/smelt/internal/command"
	"github.com/smeltrun/smelt/internal/eventbus"
	"github.com/smeltrun/smelt/internal/executor"
	"github.com/smeltrun/smelt/internal/protocol"
	"github.com/smeltrun/smelt/internal/workspace"
)

// Result is the resolved computation for one command within a transaction.
type Result struct {
	Outcome executor.Outcome
	Skipped bool
	Err     error
}

// future is the in-flight/completed state for one command name, shared by
// every goroutine that depends on it within the same transaction.
type future struct {
	done   chan struct{}
	result Result
}

// Graph is one transaction's memoizing computation graph over a validated
// command.Set.
type Graph struct {
	set       *command.Set
	exec      executor.Executor
	admission *executor.Admission
	bus       *eventbus.Bus
	root      string
	traceID   string

	mu       sync.Mutex
	inflight map[string]*future
}

// New builds a transaction-scoped Graph. root is the Smelt root directory;
// traceID identifies the invocation for the event stream.
func New(set *command.Set, exec executor.Executor, admission *executor.Admission, bus *eventbus.Bus, root, traceID string) *Graph {
	return &Graph{
		set:       set,
		exec:      exec,
		admission: admission,
		bus:       bus,
		root:      root,
		traceID:   traceID,
		inflight:  make(map[string]*future),
	}
}

// eventSink adapts executor.StdoutSink/profiler.Sink to the event bus.
type eventSink struct {
	bus        *eventbus.Bus
	traceID    string
	commandRef string
}

func (s *eventSink) Line(line string) {
	s.bus.Publish(context.Background(), protocol.CommandStdoutEvent(s.traceID, s.commandRef, line))
}

func (s *eventSink) Profile(p protocol.CommandProfile) {
	s.bus.Publish(context.Background(), protocol.CommandProfileEvent(s.traceID, s.commandRef, p.MemoryUsed, p.CPULoad, p.TimeSinceStartMs))
}

// Compute resolves name to a Result, running its full dependency closure
// exactly once per transaction regardless of the fan-in. Concurrent callers
// for the same name within one transaction block on the same future.
func (g *Graph) Compute(ctx context.Context, name string) (Result, error) {
	g.mu.Lock()
	f, exists := g.inflight[name]
	if !exists {
		f = &future{done: make(chan struct{})}
		g.inflight[name] = f
	}
	g.mu.Unlock()

	if exists {
		select {
		case <-f.done:
			return f.result, nil
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	f.result = g.compute(ctx, name)
	close(f.done)
	return f.result, nil
}

func (g *Graph) compute(ctx context.Context, name string) Result {
	c, ok := g.set.Get(name)
	if !ok {
		return Result{Err: fmt.Errorf("unknown command %q", name)}
	}

	depNames := g.set.AllDeps(c)

	depResults := make([]Result, len(depNames))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, dep := range depNames {
		i, dep := i, dep
		eg.Go(func() error {
			r, err := g.Compute(egCtx, dep)
			if err != nil {
				return err
			}
			depResults[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{Err: err}
	}

	for _, r := range depResults {
		if r.Skipped || r.Err != nil || !r.Outcome.Success() {
			g.bus.Publish(ctx, protocol.CommandSkippedEvent(g.traceID, name))
			return Result{Skipped: true}
		}
	}

	return g.run(ctx, c)
}

func (g *Graph) run(ctx context.Context, c *command.Command) Result {
	permits := int64(c.Runtime.NumCPUs)
	if permits <= 0 {
		permits = 1
	}
	permits = g.admission.Cap(permits)
	if err := g.admission.Acquire(ctx, permits); err != nil {
		return Result{Err: fmt.Errorf("admission for %q: %w", c.Name, err)}
	}
	defer g.admission.Release(permits)

	g.bus.Publish(ctx, protocol.CommandScheduledEvent(g.traceID, c.Name))

	built, err := workspace.Build(g.root, c)
	if err != nil {
		return Result{Err: fmt.Errorf("build workspace for %q: %w", c.Name, err)}
	}
	defer built.StdoutFile.Close()

	g.bus.Publish(ctx, protocol.CommandStartedEvent(g.traceID, c.Name))

	sink := &eventSink{bus: g.bus, traceID: g.traceID, commandRef: c.Name}
	outcome, err := g.exec.Run(ctx, c, built.ScriptPath, built.Dir, g.root, built.StdoutFile, sink)
	if err != nil {
		return Result{Err: fmt.Errorf("execute %q: %w", c.Name, err)}
	}

	g.bus.Publish(ctx, protocol.CommandFinishedEvent(g.traceID, c.Name, protocol.TestOutputs{
		Artifacts: outcome.Artifacts,
		ExitCode:  outcome.ExitCode,
	}))

	return Result{Outcome: outcome}
}
