package smelterr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClientUsesSyntheticTraceID(t *testing.T) {
	err := NewClient("bad field %q", "name")
	require.Equal(t, "CLIENT_ERROR", err.TraceID)
	require.Equal(t, Client, err.Kind)
	require.Contains(t, err.Error(), "bad field")
}

func TestNewValidateUsesSyntheticTraceID(t *testing.T) {
	err := NewValidate("cycle detected: %v", []string{"a", "b"})
	require.Equal(t, "VALIDATE_ERROR", err.TraceID)
	require.Equal(t, Validate, err.Kind)
}

func TestNewInternalWrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewInternal("trace-1", cause, "write workspace")
	require.Equal(t, "trace-1", err.TraceID)
	require.ErrorIs(t, err, cause)
}

func TestEventMapping(t *testing.T) {
	ce := NewClient("nope").Event()
	require.NotNil(t, ce.Error)
	require.Equal(t, "CLIENT_ERROR", ce.TraceID)

	ve := NewValidate("nope").Event()
	require.Equal(t, "VALIDATE_ERROR", ve.TraceID)

	ie := NewInternal("trace-2", errors.New("x"), "boom").Event()
	require.Equal(t, "trace-2", ie.TraceID)
}
