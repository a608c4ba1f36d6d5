// Package workspace materializes a command's on-disk working area:
// <root>/smelt-out/<name>/command.sh (the script to execute) and
// command.out (captured stdout), grounded on pkg/relay/executor.go's
// writeFileContent (os.MkdirAll + os.WriteFile, no shell involved).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/smeltrun/smelt/internal/command"
)

const (
	scriptFileName = "command.sh"
	// StdoutFileName is command.out's basename, relative to a Built.Dir;
	// exported so internal/executor can point the synthetic smelt_log
	// artifact at it without re-deriving the workspace layout.
	StdoutFileName = "command.out"
	scriptPerm     = 0o750
)

// Built is the result of materializing a command's workspace.
type Built struct {
	Dir        string
	ScriptPath string
	StdoutPath string
	StdoutFile *os.File
}

// Build writes command.sh (the export preamble plus the command's script)
// under <root>/smelt-out/<name>/ and opens command.out for writing. The
// caller is responsible for closing StdoutFile.
func Build(root string, c *command.Command) (*Built, error) {
	dir := filepath.Join(root, c.TargetRootRelPath())
	if err := os.MkdirAll(dir, scriptPerm); err != nil {
		return nil, fmt.Errorf("create workspace directory %s: %w", dir, err)
	}

	scriptPath := filepath.Join(dir, scriptFileName)
	script := renderScript(root, dir, c)
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return nil, fmt.Errorf("write script %s: %w", scriptPath, err)
	}

	stdoutPath := filepath.Join(dir, StdoutFileName)
	stdoutFile, err := os.Create(stdoutPath)
	if err != nil {
		return nil, fmt.Errorf("create stdout file %s: %w", stdoutPath, err)
	}

	return &Built{
		Dir:        dir,
		ScriptPath: scriptPath,
		StdoutPath: stdoutPath,
		StdoutFile: stdoutFile,
	}, nil
}

// renderScript builds the full shell script: a shebang, the SMELT_ROOT and
// TARGET_ROOT exports (ambient, not user-declared), the working directory
// cd, then the command's own export-preamble-plus-script lines.
func renderScript(root, targetDir string, c *command.Command) string {
	workingDir := c.WorkingDir
	if workingDir == "" {
		workingDir = root
	} else if !filepath.IsAbs(workingDir) {
		workingDir = filepath.Join(root, workingDir)
	}

	lines := []string{
		"#!/usr/bin/env bash",
		"set -e",
		fmt.Sprintf("export SMELT_ROOT=%q", root),
		fmt.Sprintf("export TARGET_ROOT=%q", targetDir),
		fmt.Sprintf("cd %q", workingDir),
	}
	lines = append(lines, c.ScriptLines()...)

	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}
