package protocol

import "time"

// ProfilingConfig controls the periodic resource-usage sampler (§4.7). A
// nil *ProfilingConfig on ConfigureSmelt disables profiling entirely.
type ProfilingConfig struct {
	ProfType         string `json:"prof_type"`
	SamplingPeriodMs uint64 `json:"sampling_period_ms"`
}

// Interval converts the wire-level millisecond period to a time.Duration,
// defaulting to one second if unset so a zero-value ProfilingConfig never
// busy-loops the sampler.
func (p *ProfilingConfig) Interval() time.Duration {
	if p == nil || p.SamplingPeriodMs == 0 {
		return time.Second
	}
	return time.Duration(p.SamplingPeriodMs) * time.Millisecond
}

// Ulimit is one container resource limit applied at container creation.
type Ulimit struct {
	Name string `json:"name"`
	Soft int64  `json:"soft"`
	Hard int64  `json:"hard"`
}

// RunMode selects how a Docker executor reaches a command's workspace
// (§4.6): RunModeLocal bind-mounts the Smelt root; RunModeRemote synthesizes
// a self-contained in-band command with no source bind-mount.
type RunMode string

const (
	RunModeLocal  RunMode = "local"
	RunModeRemote RunMode = "remote"
)

// DockerExecutorConfig configures the Docker executor (§6/§4.6). Platform
// is an addition beyond §6's literal field list: §4.6 explicitly calls
// platform selection out as configurable even though the §6 schema summary
// omits it, so it is carried here alongside the fields §6 does name.
type DockerExecutorConfig struct {
	ImageName             string            `json:"image_name"`
	AdditionalMounts      map[string]string `json:"additional_mounts,omitempty"`
	Ulimits               []Ulimit          `json:"ulimits,omitempty"`
	MACAddress            string            `json:"mac_address,omitempty"`
	RunMode               RunMode           `json:"run_mode"`
	ArtifactBindDirectory string            `json:"artifact_bind_directory"`
	Platform              string            `json:"platform,omitempty"`
}

// InitExecutor selects and configures the executor a service runs commands
// with (§6): exactly one of Local or Docker is set.
type InitExecutor struct {
	Local  *struct{}             `json:"local,omitempty"`
	Docker *DockerExecutorConfig `json:"docker,omitempty"`
}

// ConfigureSmelt is the effective server configuration returned by
// GetConfig (§6), and also doubles as the process's own startup
// configuration (internal/config.Load produces one from the environment).
type ConfigureSmelt struct {
	SmeltRoot    string           `json:"smelt_root"`
	JobSlots     uint32           `json:"job_slots"`
	Silent       bool             `json:"silent,omitempty"`
	ProfCfg      *ProfilingConfig `json:"prof_cfg,omitempty"`
	InitExecutor InitExecutor     `json:"init_executor"`
}
