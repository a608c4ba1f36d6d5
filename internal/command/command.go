// Package command holds Smelt's immutable value types — Command, Runtime,
// TargetType — and the command-set validation that turns a parsed YAML
// document into a DAG-checked Set ready for the graph engine.
package command

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/smeltrun/smelt/internal/smeltpath"
)

// TargetType classifies what a Command produces.
type TargetType string

const (
	TargetTest     TargetType = "test"
	TargetStimulus TargetType = "stimulus"
	TargetBuild    TargetType = "build"
)

// Valid reports whether t is one of the three recognized target types.
func (t TargetType) Valid() bool {
	switch t {
	case TargetTest, TargetStimulus, TargetBuild:
		return true
	default:
		return false
	}
}

// Runtime describes the resources and environment a Command executes with.
type Runtime struct {
	NumCPUs       uint32     `yaml:"num_cpus"                  json:"num_cpus"`
	MaxMemoryMB   uint32     `yaml:"max_memory_mb"              json:"max_memory_mb"`
	Timeout       uint32     `yaml:"timeout"                    json:"timeout"`
	Env           OrderedEnv `yaml:"env"                        json:"env"`
	CommandRunDir *string    `yaml:"command_run_dir,omitempty"  json:"command_run_dir,omitempty"`
}

// Dependency is a raw dependency reference as declared in YAML: either a
// bare command name, or //path:name syntax, which resolves to its name
// component.
type Dependency string

// Name returns the command name this dependency resolves to.
func (d Dependency) Name() string {
	s := string(d)
	if strings.HasPrefix(s, "//") {
		if idx := strings.LastIndex(s, ":"); idx >= 0 {
			return s[idx+1:]
		}
	}
	return s
}

// Command is an immutable description of one unit of work.
type Command struct {
	Name           string                    `yaml:"name"                     json:"name"`
	TargetType     TargetType                `yaml:"target_type"              json:"target_type"`
	Script         []string                  `yaml:"script"                   json:"script"`
	Dependencies   []Dependency              `yaml:"dependencies,omitempty"   json:"dependencies,omitempty"`
	DependentFiles []smeltpath.CommandDefPath `yaml:"dependent_files,omitempty" json:"dependent_files,omitempty"`
	Outputs        []smeltpath.CommandDefPath `yaml:"outputs,omitempty"        json:"outputs,omitempty"`
	Runtime        Runtime                   `yaml:"runtime"                  json:"runtime"`
	WorkingDir     string                    `yaml:"working_dir,omitempty"    json:"working_dir,omitempty"`
}

// TargetRootRelPath is the per-command output directory, relative to the
// Smelt root: smelt-out/<name>.
func (c *Command) TargetRootRelPath() string {
	return "smelt-out/" + c.Name
}

// ScriptLines returns the export preamble (one "export K=V" per runtime env
// entry, in the order given) followed by the command's own script lines.
// The SMELT_ROOT/TARGET_ROOT exports are added by the workspace builder,
// not here, since they are not part of the user-declared runtime env.
func (c *Command) ScriptLines() []string {
	lines := make([]string, 0, c.Runtime.Env.Len()+len(c.Script))
	for _, k := range c.Runtime.Env.Keys() {
		v, _ := c.Runtime.Env.Get(k)
		lines = append(lines, fmt.Sprintf("export %s=%s", k, v))
	}
	lines = append(lines, c.Script...)
	return lines
}

// Digest is a stable content hash of a Command's script, dependencies,
// outputs, and env. It is never persisted across invocations, and
// internal/graph does not use it: the graph memoizes by command name (see
// SPEC_FULL.md §8, grounded on the original implementation's
// crates/smelt-graph/src/digest.rs).
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ComputeDigest hashes the fields that determine a command's identity for
// intra-invocation deduplication: name, target type, script lines,
// dependency names, declared outputs, and env.
func ComputeDigest(c *Command) Digest {
	h := sha256.New()
	_, _ = h.Write([]byte(c.Name))
	_, _ = h.Write([]byte(c.TargetType))
	for _, line := range c.Script {
		_, _ = h.Write([]byte(line))
	}
	for _, dep := range c.Dependencies {
		_, _ = h.Write([]byte(dep.Name()))
	}
	for _, out := range c.Outputs {
		_, _ = h.Write([]byte(out.String()))
	}
	for _, k := range c.Runtime.Env.Keys() {
		v, _ := c.Runtime.Env.Get(k)
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte(v))
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
