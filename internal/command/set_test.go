package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustSet(t *testing.T, yamlDoc string) *Set {
	t.Helper()
	s, err := ParseSet([]byte(yamlDoc))
	require.NoError(t, err)
	return s
}

func TestParseSetSimple(t *testing.T) {
	s := mustSet(t, `
- name: a
  target_type: test
  script: ["echo hi"]
  runtime: {num_cpus: 1, max_memory_mb: 128, timeout: 30, env: {}}
  working_dir: "."
`)
	require.Equal(t, 1, s.Len())
	c, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, TargetTest, c.TargetType)
	require.Equal(t, []string{"echo hi"}, c.Script)
}

func TestDuplicateNameRejected(t *testing.T) {
	_, err := ParseSet([]byte(`
- name: a
  target_type: test
  script: ["true"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
- name: a
  target_type: build
  script: ["true"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`))
	require.ErrorContains(t, err, "duplicate command name")
}

func TestDuplicateOutputRejected(t *testing.T) {
	_, err := ParseSet([]byte(`
- name: a
  target_type: build
  script: ["true"]
  outputs: ["out.txt"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
- name: b
  target_type: build
  script: ["true"]
  outputs: ["out.txt"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`))
	require.ErrorContains(t, err, "declared by both")
}

func TestMissingDependencyRejected(t *testing.T) {
	_, err := ParseSet([]byte(`
- name: a
  target_type: test
  script: ["true"]
  dependencies: ["b"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`))
	require.ErrorContains(t, err, "missing command dependency")
}

func TestMissingDependentFileRejected(t *testing.T) {
	_, err := ParseSet([]byte(`
- name: a
  target_type: test
  script: ["true"]
  dependent_files: ["out.txt"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`))
	require.ErrorContains(t, err, "dependent_files entry")
}

func TestCycleRejected(t *testing.T) {
	_, err := ParseSet([]byte(`
- name: a
  target_type: test
  script: ["true"]
  dependencies: ["b"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
- name: b
  target_type: test
  script: ["true"]
  dependencies: ["a"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`))
	require.ErrorContains(t, err, "cycle")
}

func TestDependencyReferenceSyntax(t *testing.T) {
	s := mustSet(t, `
- name: a
  target_type: build
  script: ["true"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
- name: b
  target_type: test
  script: ["true"]
  dependencies: ["//some/path:a"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`)
	c, ok := s.Get("b")
	require.True(t, ok)
	require.Equal(t, "a", c.Dependencies[0].Name())
}

func TestOrderedEnvPreservesDeclarationOrder(t *testing.T) {
	s := mustSet(t, `
- name: a
  target_type: test
  script: ["true"]
  runtime:
    num_cpus: 1
    max_memory_mb: 1
    timeout: 1
    env:
      ZEBRA: "1"
      ALPHA: "2"
`)
	c, _ := s.Get("a")
	require.Equal(t, []string{"ZEBRA", "ALPHA"}, c.Runtime.Env.Keys())
	lines := c.ScriptLines()
	require.Equal(t, "export ZEBRA=1", lines[0])
	require.Equal(t, "export ALPHA=2", lines[1])
}

func TestByTargetType(t *testing.T) {
	s := mustSet(t, `
- name: build_x
  target_type: build
  script: ["true"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
- name: test_x
  target_type: test
  script: ["true"]
  dependencies: ["build_x"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {}}
`)
	require.Equal(t, []string{"test_x"}, s.ByTargetType(TargetTest))
}

func TestComputeDigestStable(t *testing.T) {
	s := mustSet(t, `
- name: a
  target_type: test
  script: ["echo hi"]
  runtime: {num_cpus: 1, max_memory_mb: 1, timeout: 1, env: {K: "V"}}
`)
	c, _ := s.Get("a")
	d1 := ComputeDigest(c)
	d2 := ComputeDigest(c)
	require.Equal(t, d1, d2)
}
