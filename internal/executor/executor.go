// Package executor runs commands, either as a local subprocess or inside a
// Docker container, under a single admission-controlled semaphore shared
// across an invocation (§4.4–§4.6). The strategy pattern here — one
// Executor interface, two implementations selected on ConfigureSmelt — is
// grounded on pkg/fleet.Executor's RelayClient seam.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/semaphore"

	"github.com/smeltrun/smelt/internal/command"
	"github.com/smeltrun/smelt/internal/protocol"
)

// Outcome is the resolved result of running one command.
type Outcome struct {
	ExitCode  int32
	Artifacts []protocol.ArtifactPointer
	// MissingArtifacts names declared outputs that were not present on disk
	// after the script exited, whatever its exit code — §4.5 MissingFiles case.
	MissingArtifacts []string
}

// Success reports whether the command exited zero and produced every
// declared output.
func (o Outcome) Success() bool {
	return o.ExitCode == 0 && len(o.MissingArtifacts) == 0
}

// StdoutSink receives forwarded output lines as a command runs, and
// profiler samples taken while it is running.
type StdoutSink interface {
	Line(line string)
	Profile(sample protocol.CommandProfile)
}

// Executor runs one already-admitted command to completion.
type Executor interface {
	// Run executes c's script (already materialized at scriptPath by
	// internal/workspace, inside workDir) and streams output/profile samples
	// to sink. Every forwarded line is also teed into stdout (command.out),
	// per §4.4, regardless of the silent configuration bit, which only
	// suppresses the CommandStdout event. root is the invocation's Smelt
	// root, needed to resolve $SMELT_ROOT-bearing output paths.
	Run(ctx context.Context, c *command.Command, scriptPath, workDir, root string, stdout io.Writer, sink StdoutSink) (Outcome, error)
}

// Admission is the single global weighted semaphore shared by every
// command in an invocation, sized to job_slots permits (§5). Each command
// acquires min(c.Runtime.NumCPUs, job_slots) permits before running — never
// more than the pool's own size, or Acquire would block until ctx is done
// and never succeed.
type Admission struct {
	sem   *semaphore.Weighted
	total int64
}

// NewAdmission builds an Admission pool with the given total permit count.
func NewAdmission(totalPermits int64) *Admission {
	if totalPermits <= 0 {
		totalPermits = 1
	}
	return &Admission{sem: semaphore.NewWeighted(totalPermits), total: totalPermits}
}

// Cap clamps n to the pool's total permit count, per §4.4/§5's
// min(num_cpus, job_slots) admission rule.
func (a *Admission) Cap(n int64) int64 {
	if n > a.total {
		return a.total
	}
	return n
}

// Acquire blocks until n permits are available or ctx is done.
func (a *Admission) Acquire(ctx context.Context, n int64) error {
	if err := a.sem.Acquire(ctx, n); err != nil {
		return fmt.Errorf("acquire %d admission permits: %w", n, err)
	}
	return nil
}

// Release returns n permits to the pool.
func (a *Admission) Release(n int64) {
	a.sem.Release(n)
}

// lineWriter adapts an io.Writer of raw bytes to per-line StdoutSink.Line
// calls, so the Local and Docker executors can share one line-splitting
// implementation. Every line is written to stdout followed by a newline
// (§4.3/§4.4) regardless of silent; silent only suppresses the sink event.
type lineWriter struct {
	sink   StdoutSink
	stdout io.Writer
	silent bool
	buf    []byte
}

func newLineWriter(sink StdoutSink, stdout io.Writer, silent bool) *lineWriter {
	return &lineWriter{sink: sink, stdout: stdout, silent: silent}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		w.emit(string(w.buf[:idx]))
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

// flush emits any trailing partial line once the stream is known to be
// finished.
func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

func (w *lineWriter) emit(line string) {
	if w.stdout != nil {
		fmt.Fprintln(w.stdout, line)
	}
	if !w.silent {
		w.sink.Line(line)
	}
}

var _ io.Writer = (*lineWriter)(nil)
