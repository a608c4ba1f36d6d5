package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smeltrun/smelt/internal/protocol"
	"github.com/smeltrun/smelt/internal/service"
)

func TestInProcessRunsToCompletion(t *testing.T) {
	fe := &fakeExecutor{}
	svc := service.New(protocol.ConfigureSmelt{SmeltRoot: t.TempDir(), JobSlots: 4}, fe)
	c := NewInProcess(svc)

	setResp := c.Do(context.Background(), protocol.SendCommandsCommand(`
- name: build_x
  target_type: build
  script: ["true"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`))
	require.NotNil(t, setResp.CommandSettingOK)

	runResp := c.Do(context.Background(), protocol.ExecuteCommandCommand("build_x"))
	require.NotNil(t, runResp.Invoked)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for e := range c.Stream(ctx, runResp.Invoked.TraceID) {
		if e.IsInvokeDone() {
			break
		}
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&fe.runCount))
}
