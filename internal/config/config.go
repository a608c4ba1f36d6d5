// Package config loads ConfigureSmelt from the process environment,
// applying the defaults a bare invocation needs (job slots, a working
// root) before any command set is installed.
package config

import (
	"os"
	"runtime"

	"github.com/caarlos0/env/v11"

	"github.com/smeltrun/smelt/internal/protocol"
)

// envConfig is the flat shape caarlos0/env parses from the process
// environment; Load reshapes it into the nested ConfigureSmelt wire type
// (§6), which has no env tags of its own since InitExecutor/ProfCfg don't
// map onto flat environment variables one-to-one.
type envConfig struct {
	SmeltRoot        string `env:"SMELT_ROOT"`
	JobSlots         uint32 `env:"SMELT_JOB_SLOTS"`
	Silent           bool   `env:"SMELT_SILENT"`
	DockerMode       bool   `env:"SMELT_DOCKER_MODE"`
	DockerImage      string `env:"SMELT_DOCKER_IMAGE"`
	DockerRunMode    string `env:"SMELT_DOCKER_RUN_MODE" envDefault:"local"`
	ArtifactBindDir  string `env:"SMELT_ARTIFACT_BIND_DIR" envDefault:"/tmp/artifacts"`
	ProfilingEnabled bool   `env:"SMELT_PROFILING_ENABLED"`
	SamplingPeriodMs uint64 `env:"SMELT_SAMPLING_PERIOD_MS" envDefault:"1000"`
}

// Load builds a protocol.ConfigureSmelt from environment variables,
// defaulting JobSlots to the number of CPUs and SmeltRoot to the current
// working directory when unset.
func Load() (protocol.ConfigureSmelt, error) {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return protocol.ConfigureSmelt{}, err
	}

	cfg := protocol.ConfigureSmelt{
		SmeltRoot: e.SmeltRoot,
		JobSlots:  e.JobSlots,
		Silent:    e.Silent,
	}
	if cfg.JobSlots == 0 {
		cfg.JobSlots = uint32(runtime.NumCPU())
	}
	if cfg.SmeltRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.SmeltRoot = wd
		}
	}

	if e.DockerMode {
		runMode := protocol.RunModeLocal
		if e.DockerRunMode == string(protocol.RunModeRemote) {
			runMode = protocol.RunModeRemote
		}
		cfg.InitExecutor = protocol.InitExecutor{Docker: &protocol.DockerExecutorConfig{
			ImageName:             e.DockerImage,
			RunMode:               runMode,
			ArtifactBindDirectory: e.ArtifactBindDir,
		}}
	} else {
		cfg.InitExecutor = protocol.InitExecutor{Local: &struct{}{}}
	}

	if e.ProfilingEnabled {
		cfg.ProfCfg = &protocol.ProfilingConfig{ProfType: "process", SamplingPeriodMs: e.SamplingPeriodMs}
	}

	return cfg, nil
}
