package service

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smeltrun/smelt/internal/command"
	"github.com/smeltrun/smelt/internal/executor"
	"github.com/smeltrun/smelt/internal/protocol"
)

type fakeExecutor struct{ runCount int32 }

func (f *fakeExecutor) Run(ctx context.Context, c *command.Command, scriptPath, workDir, root string, stdout io.Writer, sink executor.StdoutSink) (executor.Outcome, error) {
	atomic.AddInt32(&f.runCount, 1)
	return executor.Outcome{ExitCode: 0}, nil
}

func newTestService(root string, exec executor.Executor, jobSlots uint32) *Service {
	return New(protocol.ConfigureSmelt{SmeltRoot: root, JobSlots: jobSlots}, exec)
}

func drainUntilDone(t *testing.T, svc *Service, traceID string) {
	t.Helper()
	bus, ok := svc.Events(traceID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		e, ok := bus.Consume(ctx)
		if !ok {
			return
		}
		if e.IsInvokeDone() {
			return
		}
	}
}

func TestDispatchSetCommandsThenRunOne(t *testing.T) {
	fe := &fakeExecutor{}
	svc := newTestService(t.TempDir(), fe, 4)

	setResp := svc.Dispatch(context.Background(), protocol.SendCommandsCommand(`
- name: build_x
  target_type: build
  script: ["true"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`))
	require.NotNil(t, setResp.CommandSettingOK)
	require.Equal(t, 1, setResp.CommandSettingOK.Count)

	runResp := svc.Dispatch(context.Background(), protocol.ExecuteCommandCommand("build_x"))
	require.NotNil(t, runResp.Invoked)

	drainUntilDone(t, svc, runResp.Invoked.TraceID)
	require.Equal(t, int32(1), atomic.LoadInt32(&fe.runCount))
}

func TestDispatchRunWithoutCommandSetFails(t *testing.T) {
	svc := newTestService(t.TempDir(), &fakeExecutor{}, 4)
	resp := svc.Dispatch(context.Background(), protocol.ExecuteCommandCommand("anything"))
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.ErrorKindClient, resp.Error.Sig)
}

func TestDispatchSetCommandsRejectsInvalidYAML(t *testing.T) {
	svc := newTestService(t.TempDir(), &fakeExecutor{}, 4)
	resp := svc.Dispatch(context.Background(), protocol.SendCommandsCommand("not: [valid"))
	require.NotNil(t, resp.CommandSettingFailed)
	require.Equal(t, 1, resp.CommandSettingFailed.Count)
}

func TestDispatchGetConfigReturnsRoot(t *testing.T) {
	svc := newTestService("/tmp/smelt-root", &fakeExecutor{}, 4)
	resp := svc.Dispatch(context.Background(), protocol.GetConfigCommand())
	require.NotNil(t, resp.Config)
	require.Equal(t, "/tmp/smelt-root", resp.Config.SmeltRoot)
}

func TestDispatchRunTypeRunsMatchingCommandsAndTheirDependencies(t *testing.T) {
	fe := &fakeExecutor{}
	svc := newTestService(t.TempDir(), fe, 4)

	setResp := svc.Dispatch(context.Background(), protocol.SendCommandsCommand(`
- name: build_x
  target_type: build
  script: ["true"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
- name: test_x
  target_type: test
  script: ["true"]
  dependencies: ["build_x"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`))
	require.NotNil(t, setResp.CommandSettingOK)

	runResp := svc.Dispatch(context.Background(), protocol.ExecuteTypeCommand(string(command.TargetTest)))
	require.NotNil(t, runResp.Invoked)

	drainUntilDone(t, svc, runResp.Invoked.TraceID)
	require.Equal(t, int32(2), atomic.LoadInt32(&fe.runCount))
}
