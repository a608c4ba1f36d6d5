package config

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, uint32(runtime.NumCPU()), cfg.JobSlots)
	require.NotEmpty(t, cfg.SmeltRoot)
}

func TestLoadRespectsEnvOverride(t *testing.T) {
	t.Setenv("SMELT_JOB_SLOTS", "3")
	t.Setenv("SMELT_DOCKER_MODE", "true")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, uint32(3), cfg.JobSlots)
	require.NotNil(t, cfg.InitExecutor.Docker)
}

func TestLoadDefaultsToLocalExecutor(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.InitExecutor.Local)
	require.Nil(t, cfg.InitExecutor.Docker)
}
