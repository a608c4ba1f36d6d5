// Package protocol defines Smelt's wire-stable types: the Event stream
// emitted for every invocation and the ClientCommand request/response
// envelope (§6), plus the length-delimited JSON framing used to move both
// across an io.Writer/io.Reader boundary.
package protocol

import "time"

// Synthetic trace ids used for errors that are not scoped to a running
// invocation (§7).
const (
	TraceClientError   = "CLIENT_ERROR"
	TraceValidateError = "VALIDATE_ERROR"
)

// ErrorKind is the wire-stable error signature carried on an Error event.
type ErrorKind string

const (
	ErrorKindClient   ErrorKind = "client_error"
	ErrorKindInternal ErrorKind = "internal_error"
	ErrorKindValidate ErrorKind = "validate_error"
)

// Timestamp is the wire form of a point in time: seconds + nanos, matching
// the original's prost_types::Timestamp-derived (seconds, nanos) pair.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// NewTimestamp converts a time.Time to the wire Timestamp shape.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos))
}

// Event is the single wire-stable envelope carried on the event bus:
// {trace_id, timestamp, variant}.
type Event struct {
	TraceID string    `json:"trace_id"`
	Time    Timestamp `json:"time"`

	Invoke  *InvokeEvent  `json:"invoke,omitempty"`
	Command *CommandEvent `json:"command,omitempty"`
	Error   *ErrorEvent   `json:"error,omitempty"`
}

// InvokeEvent carries the per-invocation preamble/postamble.
type InvokeEvent struct {
	Start    *InvokeStart `json:"start,omitempty"`
	Done     *struct{}    `json:"done,omitempty"`
	SetGraph *struct{}    `json:"set_graph,omitempty"`
}

// InvokeStart is the execution preamble: best-effort host/git context.
type InvokeStart struct {
	Hostname  string `json:"hostname"`
	Username  string `json:"username"`
	SmeltRoot string `json:"smelt_root"`
	GitHash   string `json:"git_hash"`
	GitBranch string `json:"git_branch"`
	GitRepo   string `json:"git_repo"`
}

// CommandEvent carries one command's lifecycle event.
type CommandEvent struct {
	CommandRef string `json:"command_ref"`

	Scheduled *struct{}        `json:"scheduled,omitempty"`
	Started   *struct{}        `json:"started,omitempty"`
	Stdout    *CommandStdout   `json:"stdout,omitempty"`
	Profile   *CommandProfile  `json:"profile,omitempty"`
	Finished  *CommandFinished `json:"finished,omitempty"`
	Cancelled *struct{}        `json:"cancelled,omitempty"`
	Skipped   *struct{}        `json:"skipped,omitempty"`
}

// CommandStdout carries one forwarded output line.
type CommandStdout struct {
	Output string `json:"output"`
}

// CommandProfile carries one profiler sample delta.
type CommandProfile struct {
	MemoryUsed       uint64  `json:"memory_used"`
	CPULoad          float64 `json:"cpu_load"`
	TimeSinceStartMs uint64  `json:"time_since_start_ms"`
}

// CommandFinished carries the resolved outcome of a completed command.
type CommandFinished struct {
	Outputs TestOutputs `json:"outputs"`
}

// TestOutputs is the resolved artifact list plus exit code for a finished
// command.
type TestOutputs struct {
	Artifacts []ArtifactPointer `json:"artifacts"`
	ExitCode  int32             `json:"exit_code"`
}

// ArtifactPointer names one resolved artifact and its filesystem path.
type ArtifactPointer struct {
	ArtifactName string `json:"artifact_name"`
	Path         string `json:"path"`
}

// ErrorEvent carries a reported error, scoped to a trace id (§7).
type ErrorEvent struct {
	Sig          ErrorKind `json:"sig"`
	ErrorPayload string    `json:"error_payload"`
}

// Helper constructors, grounded on the original's smelt-data/src/lib.rs
// Event::* associated functions.

func NewEvent(traceID string, variant func(*Event)) Event {
	e := Event{TraceID: traceID, Time: NewTimestamp(time.Now())}
	variant(&e)
	return e
}

func CommandStartedEvent(traceID, commandRef string) Event {
	return NewEvent(traceID, func(e *Event) {
		e.Command = &CommandEvent{CommandRef: commandRef, Started: &struct{}{}}
	})
}

func CommandScheduledEvent(traceID, commandRef string) Event {
	return NewEvent(traceID, func(e *Event) {
		e.Command = &CommandEvent{CommandRef: commandRef, Scheduled: &struct{}{}}
	})
}

func CommandStdoutEvent(traceID, commandRef, line string) Event {
	return NewEvent(traceID, func(e *Event) {
		e.Command = &CommandEvent{CommandRef: commandRef, Stdout: &CommandStdout{Output: line}}
	})
}

func CommandProfileEvent(traceID, commandRef string, memoryUsed uint64, cpuLoad float64, sinceStartMs uint64) Event {
	return NewEvent(traceID, func(e *Event) {
		e.Command = &CommandEvent{CommandRef: commandRef, Profile: &CommandProfile{
			MemoryUsed: memoryUsed, CPULoad: cpuLoad, TimeSinceStartMs: sinceStartMs,
		}}
	})
}

func CommandFinishedEvent(traceID, commandRef string, outputs TestOutputs) Event {
	return NewEvent(traceID, func(e *Event) {
		e.Command = &CommandEvent{CommandRef: commandRef, Finished: &CommandFinished{Outputs: outputs}}
	})
}

func CommandSkippedEvent(traceID, commandRef string) Event {
	return NewEvent(traceID, func(e *Event) {
		e.Command = &CommandEvent{CommandRef: commandRef, Skipped: &struct{}{}}
	})
}

func CommandCancelledEvent(traceID, commandRef string) Event {
	return NewEvent(traceID, func(e *Event) {
		e.Command = &CommandEvent{CommandRef: commandRef, Cancelled: &struct{}{}}
	})
}

func InvokeStartEvent(traceID string, start InvokeStart) Event {
	return NewEvent(traceID, func(e *Event) {
		e.Invoke = &InvokeEvent{Start: &start}
	})
}

func InvokeDoneEvent(traceID string) Event {
	return NewEvent(traceID, func(e *Event) {
		e.Invoke = &InvokeEvent{Done: &struct{}{}}
	})
}

func InvokeSetGraphEvent() Event {
	return NewEvent("", func(e *Event) {
		e.Invoke = &InvokeEvent{SetGraph: &struct{}{}}
	})
}

// IsInvokeDone reports whether e is the terminal Invoke.Done marker.
func (e Event) IsInvokeDone() bool {
	return e.Invoke != nil && e.Invoke.Done != nil
}

func ClientErrorEvent(payload string) Event {
	return NewEvent(TraceClientError, func(e *Event) {
		e.Error = &ErrorEvent{Sig: ErrorKindClient, ErrorPayload: payload}
	})
}

func RuntimeErrorEvent(traceID, payload string) Event {
	return NewEvent(traceID, func(e *Event) {
		e.Error = &ErrorEvent{Sig: ErrorKindInternal, ErrorPayload: payload}
	})
}

func GraphValidateErrorEvent(payload string) Event {
	return NewEvent(TraceValidateError, func(e *Event) {
		e.Error = &ErrorEvent{Sig: ErrorKindValidate, ErrorPayload: payload}
	})
}
