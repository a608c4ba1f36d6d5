package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smeltrun/smelt/internal/protocol"
)

func TestRemoteScriptInlinesPreambleAndScript(t *testing.T) {
	c := mustCommand(t, `
- name: a
  target_type: build
  script: ["echo hi"]
  runtime:
    num_cpus: 1
    max_memory_mb: 1
    timeout: 1
    env:
      FOO: "bar"
`)
	got := remoteScript(c, "/root", "/tmp/artifacts")
	require.Equal(t, `export SMELT_ROOT="/root" && export TARGET_ROOT="/tmp/artifacts" && cd "/tmp/artifacts" && export FOO=bar && echo hi`, got)
}

func TestToDockerUlimitsPreservesValues(t *testing.T) {
	in := []protocol.Ulimit{{Name: "nofile", Soft: 1024, Hard: 2048}}
	out := toDockerUlimits(in)
	require.Len(t, out, 1)
	require.Equal(t, "nofile", out[0].Name)
	require.Equal(t, int64(1024), out[0].Soft)
	require.Equal(t, int64(2048), out[0].Hard)
}

func TestParsePlatformSplitsOSAndArch(t *testing.T) {
	p := parsePlatform("linux/arm64")
	require.Equal(t, "linux", p.OS)
	require.Equal(t, "arm64", p.Architecture)
}

func TestParsePlatformOSOnly(t *testing.T) {
	p := parsePlatform("linux")
	require.Equal(t, "linux", p.OS)
	require.Empty(t, p.Architecture)
}
