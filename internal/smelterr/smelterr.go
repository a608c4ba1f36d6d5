// Package smelterr defines Smelt's three error kinds (§7) and the synthetic
// trace ids used to report errors that are not scoped to a running
// invocation.
package smelterr

import (
	"fmt"

	"github.com/smeltrun/smelt/internal/protocol"
)

// Kind classifies an error by who is responsible for it and how a client
// should react.
type Kind int

const (
	// Client indicates a malformed or invalid request from the caller.
	Client Kind = iota
	// Internal indicates a failure inside Smelt itself (IO, executor, bug).
	Internal
	// Validate indicates the installed command set failed validation
	// (cycle, missing dependency, duplicate name/output).
	Validate
)

func (k Kind) String() string {
	switch k {
	case Client:
		return "client_error"
	case Internal:
		return "internal_error"
	case Validate:
		return "validate_error"
	default:
		return "unknown_error"
	}
}

// Error is a smelterr.Kind-tagged error, optionally scoped to an
// invocation's trace id.
type Error struct {
	Kind    Kind
	TraceID string
	Msg     string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewClient builds a client-facing error. Its trace id is the synthetic
// CLIENT_ERROR constant, since malformed requests are rejected before any
// invocation trace id exists.
func NewClient(format string, args ...interface{}) *Error {
	return &Error{Kind: Client, TraceID: protocol.TraceClientError, Msg: fmt.Sprintf(format, args...)}
}

// NewValidate builds a command-set validation error, tagged with the
// synthetic VALIDATE_ERROR trace id.
func NewValidate(format string, args ...interface{}) *Error {
	return &Error{Kind: Validate, TraceID: protocol.TraceValidateError, Msg: fmt.Sprintf(format, args...)}
}

// NewInternal builds an internal error scoped to a running invocation's
// trace id.
func NewInternal(traceID string, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: Internal, TraceID: traceID, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Event converts e into its wire Event representation.
func (e *Error) Event() protocol.Event {
	switch e.Kind {
	case Client:
		return protocol.ClientErrorEvent(e.Error())
	case Validate:
		return protocol.GraphValidateErrorEvent(e.Error())
	default:
		return protocol.RuntimeErrorEvent(e.TraceID, e.Error())
	}
}
