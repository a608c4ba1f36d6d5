package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/smeltrun/smelt/internal/command"
	"github.com/smeltrun/smelt/internal/profiler"
	"github.com/smeltrun/smelt/internal/protocol"
	"github.com/smeltrun/smelt/internal/workspace"
)

// Local runs a command's materialized script as an os/exec subprocess,
// grounded on pkg/relay/executor.go's ShellExecutor (exec.CommandContext,
// stdout/stderr capture, exit-code extraction via *exec.ExitError) and
// pkg/fleet/executor.go's timeout/ctx.Err() disambiguation.
type Local struct {
	silent  bool
	profCfg *protocol.ProfilingConfig
}

// NewLocal builds a Local executor. silent suppresses CommandStdout events
// (command.out still receives every line); profCfg, if non-nil, enables the
// process-tree profiler for every command this executor runs (§4.7).
func NewLocal(silent bool, profCfg *protocol.ProfilingConfig) *Local {
	return &Local{silent: silent, profCfg: profCfg}
}

// Run executes scriptPath with bash, streaming combined stdout/stderr to
// sink and stdout line-by-line, sampling the process tree concurrently if
// profiling is enabled, and resolving c's declared outputs afterward.
func (l *Local) Run(ctx context.Context, c *command.Command, scriptPath, workDir, root string, stdout io.Writer, sink StdoutSink) (Outcome, error) {
	var cmdCtx context.Context
	var cancel context.CancelFunc
	if c.Runtime.Timeout > 0 {
		cmdCtx, cancel = context.WithTimeout(ctx, time.Duration(c.Runtime.Timeout)*time.Second)
	} else {
		cmdCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "/usr/bin/env", "bash", scriptPath)
	cmd.Dir = workDir
	cmd.Env = os.Environ()

	lw := newLineWriter(sink, stdout, l.silent)
	cmd.Stdout = lw
	cmd.Stderr = lw

	if err := cmd.Start(); err != nil {
		return Outcome{ExitCode: -1}, fmt.Errorf("start command %q: %w", c.Name, err)
	}

	profCtx, stopProf := context.WithCancel(context.Background())
	if l.profCfg != nil {
		go profiler.Run(profCtx, profiler.NewProcessTreeSampler(int32(cmd.Process.Pid)), l.profCfg.Interval(), sink)
	}

	err := cmd.Wait()
	stopProf()
	lw.flush()

	exitCode := int32(0)
	if err != nil {
		if cmdCtx.Err() != nil {
			return Outcome{ExitCode: -555}, fmt.Errorf("command %q timed out: %w", c.Name, cmdCtx.Err())
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = int32(exitErr.ExitCode())
		} else {
			return Outcome{ExitCode: -555}, fmt.Errorf("run command %q: %w", c.Name, err)
		}
	}

	outcome := Outcome{ExitCode: exitCode}
	outcome.Artifacts, outcome.MissingArtifacts = resolveArtifacts(c, root, workDir)
	return outcome, nil
}

// resolveArtifacts always prepends the smelt_log artifact pointing at the
// captured command.out (§4.5: "always contains a synthetic artifact"), then
// stats each declared output path, splitting them into present artifacts
// and missing ones (the Success/MissingFiles split). Relative output paths
// resolve against the command's working directory (the directory command.sh
// cds into: working_dir joined to root, or root itself when unset).
func resolveArtifacts(c *command.Command, root, workDir string) (artifacts []protocol.ArtifactPointer, missing []string) {
	artifacts = append(artifacts, protocol.ArtifactPointer{
		ArtifactName: "smelt_log",
		Path:         filepath.Join(workDir, workspace.StdoutFileName),
	})
	base := c.WorkingDir
	if base == "" {
		base = root
	} else if !filepath.IsAbs(base) {
		base = filepath.Join(root, base)
	}
	for _, out := range c.Outputs {
		p := out.ToPath(root, base)
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, out.String())
			continue
		}
		artifacts = append(artifacts, protocol.ArtifactPointer{ArtifactName: filepath.Base(p), Path: p})
	}
	return artifacts, missing
}
