package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smeltrun/smelt/internal/command"
)

func mustCommand(t *testing.T, yamlDoc string) *command.Command {
	t.Helper()
	s, err := command.ParseSet([]byte(yamlDoc))
	require.NoError(t, err)
	c, ok := s.Get("a")
	require.True(t, ok)
	return c
}

func TestBuildCreatesScriptAndStdout(t *testing.T) {
	root := t.TempDir()
	c := mustCommand(t, `
- name: a
  target_type: build
  script: ["echo hello"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {GREETING: "hi"}}
`)

	built, err := Build(root, c)
	require.NoError(t, err)
	defer built.StdoutFile.Close()

	require.Equal(t, filepath.Join(root, "smelt-out", "a"), built.Dir)
	require.FileExists(t, built.ScriptPath)
	require.FileExists(t, built.StdoutPath)

	data, err := os.ReadFile(built.ScriptPath)
	require.NoError(t, err)
	script := string(data)
	require.Contains(t, script, "#!/usr/bin/env bash")
	require.Contains(t, script, "export GREETING=hi")
	require.Contains(t, script, "echo hello")
}

func TestBuildUsesRelativeWorkingDir(t *testing.T) {
	root := t.TempDir()
	c := mustCommand(t, `
- name: a
  target_type: build
  script: ["true"]
  working_dir: "sub/dir"
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`)
	built, err := Build(root, c)
	require.NoError(t, err)
	defer built.StdoutFile.Close()

	data, err := os.ReadFile(built.ScriptPath)
	require.NoError(t, err)
	require.Contains(t, string(data), filepath.Join(root, "sub/dir"))
}
