package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	events := []Event{
		CommandStartedEvent("trace-1", "build_x"),
		CommandStdoutEvent("trace-1", "build_x", "hello\n"),
		CommandProfileEvent("trace-1", "build_x", 1024, 0.5, 200),
		CommandFinishedEvent("trace-1", "build_x", TestOutputs{
			Artifacts: []ArtifactPointer{{ArtifactName: "bin", Path: "/out/bin"}},
			ExitCode:  0,
		}),
		CommandSkippedEvent("trace-1", "test_y"),
		InvokeDoneEvent("trace-1"),
		ClientErrorEvent("bad request"),
		GraphValidateErrorEvent("cycle detected"),
	}

	var buf bytes.Buffer
	for _, e := range events {
		require.NoError(t, WriteEvent(&buf, e))
	}
	for _, want := range events {
		got, err := ReadEvent(&buf)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestClientCommandRoundTrip(t *testing.T) {
	cmds := []ClientCommand{
		SendCommandsCommand("- name: a\n"),
		ExecuteCommandCommand("a"),
		ExecuteManyCommand([]string{"a", "b"}),
		ExecuteTypeCommand("test"),
		GetConfigCommand(),
	}
	var buf bytes.Buffer
	for _, c := range cmds {
		require.NoError(t, WriteClientCommand(&buf, c))
	}
	for _, want := range cmds {
		got, err := ReadClientCommand(&buf)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestClientRespRoundTrip(t *testing.T) {
	resp := ClientResp{Invoked: &InvokedResp{TraceID: "trace-1"}}
	var buf bytes.Buffer
	require.NoError(t, WriteClientResp(&buf, resp))
	got, err := ReadClientResp(&buf)
	require.NoError(t, err)
	require.Equal(t, resp, got)
}

func TestReadFrameRejectsWrongType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEvent(&buf, InvokeDoneEvent("trace-1")))
	_, err := ReadClientCommand(&buf)
	require.ErrorContains(t, err, "expected frame type")
}

func TestEventIsInvokeDone(t *testing.T) {
	require.True(t, InvokeDoneEvent("trace-1").IsInvokeDone())
	require.False(t, CommandStartedEvent("trace-1", "x").IsInvokeDone())
}
