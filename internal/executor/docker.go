package executor

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	networktypes "github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	units "github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/smeltrun/smelt/internal/command"
	"github.com/smeltrun/smelt/internal/profiler"
	"github.com/smeltrun/smelt/internal/protocol"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// containerSuffix returns an 11-character base-62 random suffix for
// container names, avoiding collisions between concurrent invocations that
// happen to run the same command name.
func containerSuffix() (string, error) {
	buf := make([]byte, 11)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate container name suffix: %w", err)
	}
	out := make([]byte, 11)
	for i, b := range buf {
		out[i] = base62Alphabet[int(b)%len(base62Alphabet)]
	}
	return string(out), nil
}

// Docker runs a command inside a container, grounded on
// other_examples/36407e32_willesq-thand-agent__internal-workflows-runner-run.go.go's
// executeContainerProcess (client.NewClientWithOpts, ImagePull,
// ContainerCreate/Start/Wait/Logs/Remove sequencing), extended with
// stdcopy demultiplexing since that reference naively merges the
// multiplexed stream.
//
// Two run modes exist (§4.6). RunModeLocal assumes the daemon shares the
// client's filesystem: it bind-mounts the Smelt root 1:1 and runs the
// already-materialized command.sh directly, the same script the Local
// executor would run. RunModeRemote assumes it does not: no part of the root is
// bind-mounted, so the export preamble and script body are inlined into a
// single "bash -c" command, and only the command's own output directory is
// bind-mounted, onto cfg.ArtifactBindDirectory, so declared outputs still
// land back on the host.
type Docker struct {
	cli     *dockerclient.Client
	cfg     protocol.DockerExecutorConfig
	silent  bool
	profCfg *protocol.ProfilingConfig
}

// NewDocker builds a Docker executor using the ambient DOCKER_HOST
// environment (client.FromEnv) with API version negotiation. silent
// suppresses CommandStdout events (command.out still receives every line);
// profCfg, if non-nil, enables the container stats sampler (§4.7).
func NewDocker(cfg protocol.DockerExecutorConfig, silent bool, profCfg *protocol.ProfilingConfig) (*Docker, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client init: %w", err)
	}
	return &Docker{cli: cli, cfg: cfg, silent: silent, profCfg: profCfg}, nil
}

// Run pulls the configured image if needed, creates and starts a container
// per cfg.RunMode, streams its demultiplexed logs to stdout/sink, samples
// its resource usage if profiling is enabled, and resolves c's declared
// outputs from workDir once the container exits.
func (d *Docker) Run(ctx context.Context, c *command.Command, scriptPath, workDir, root string, stdout io.Writer, sink StdoutSink) (Outcome, error) {
	rc, err := d.cli.ImagePull(ctx, d.cfg.ImageName, image.PullOptions{})
	if err != nil {
		return Outcome{}, fmt.Errorf("pull image %q: %w", d.cfg.ImageName, err)
	}
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()

	artifactDir := d.cfg.ArtifactBindDirectory
	if artifactDir == "" {
		artifactDir = "/tmp/artifacts"
	}

	var entrypoint []string
	var workingDir, targetRoot string
	binds := make([]string, 0, 1+len(d.cfg.AdditionalMounts))

	if d.cfg.RunMode == protocol.RunModeRemote {
		targetRoot = artifactDir
		workingDir = artifactDir
		entrypoint = []string{"bash", "-c", remoteScript(c, root, artifactDir)}
		binds = append(binds, fmt.Sprintf("%s:%s", workDir, artifactDir))
	} else {
		targetRoot = workDir
		workingDir = workDir
		entrypoint = []string{"bash", scriptPath}
		binds = append(binds, fmt.Sprintf("%s:%s", root, root))
	}
	for hostPath, containerPath := range d.cfg.AdditionalMounts {
		binds = append(binds, fmt.Sprintf("%s:%s", hostPath, containerPath))
	}

	containerCfg := &containertypes.Config{
		Image: d.cfg.ImageName,
		// No ports are published: a command's output is its exit code,
		// stdout, and declared artifact files, never a listening service.
		ExposedPorts: nat.PortSet{},
		Entrypoint:   entrypoint,
		Env:          envFor(c, root, targetRoot),
		WorkingDir:   workingDir,
	}

	hostCfg := &containertypes.HostConfig{Binds: binds}
	if len(d.cfg.Ulimits) > 0 {
		hostCfg.Resources.Ulimits = toDockerUlimits(d.cfg.Ulimits)
	}

	var netCfg *networktypes.NetworkingConfig
	if d.cfg.MACAddress != "" {
		netCfg = &networktypes.NetworkingConfig{
			EndpointsConfig: map[string]*networktypes.EndpointSettings{
				"bridge": {MacAddress: d.cfg.MACAddress},
			},
		}
	}

	var platform *ocispec.Platform
	if d.cfg.Platform != "" {
		platform = parsePlatform(d.cfg.Platform)
	}

	suffix, err := containerSuffix()
	if err != nil {
		return Outcome{}, err
	}
	name := fmt.Sprintf("smelt-%s-%s", c.Name, suffix)

	created, err := d.cli.ContainerCreate(ctx, containerCfg, hostCfg, netCfg, platform, name)
	if err != nil {
		return Outcome{}, fmt.Errorf("create container for %q: %w", c.Name, err)
	}
	containerID := created.ID
	defer func() {
		_ = d.cli.ContainerRemove(context.Background(), containerID, containertypes.RemoveOptions{Force: true})
	}()

	if err := d.cli.ContainerStart(ctx, containerID, containertypes.StartOptions{}); err != nil {
		return Outcome{}, fmt.Errorf("start container for %q: %w", c.Name, err)
	}

	profCtx, stopProf := context.WithCancel(context.Background())
	if d.profCfg != nil {
		go profiler.Run(profCtx, profiler.NewContainerSampler(d.cli, containerID), d.profCfg.Interval(), sink)
	}

	statusCh, errCh := d.cli.ContainerWait(ctx, containerID, containertypes.WaitConditionNotRunning)

	lw := newLineWriter(sink, stdout, d.silent)
	logsReader, lerr := d.cli.ContainerLogs(ctx, containerID, containertypes.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if lerr == nil {
		go func() {
			_, _ = stdcopy.StdCopy(lw, lw, logsReader)
			_ = logsReader.Close()
		}()
	}

	var exitCode int32 = -555
	var waitErr error
	select {
	case status := <-statusCh:
		exitCode = int32(status.StatusCode)
	case werr := <-errCh:
		if werr != nil {
			waitErr = fmt.Errorf("wait for container running %q: %w", c.Name, werr)
		}
	case <-ctx.Done():
		_ = d.cli.ContainerKill(context.Background(), containerID, "KILL")
		waitErr = fmt.Errorf("command %q timed out: %w", c.Name, ctx.Err())
	}
	stopProf()
	lw.flush()

	if waitErr != nil {
		return Outcome{ExitCode: exitCode}, waitErr
	}

	outcome := Outcome{ExitCode: exitCode}
	outcome.Artifacts, outcome.MissingArtifacts = resolveArtifacts(c, root, workDir)
	return outcome, nil
}

// envFor builds a container's environment, prepending SMELT_ROOT and
// TARGET_ROOT (ambient, not user-declared, matching workspace.renderScript's
// own preamble) ahead of the command's declared runtime env, in order.
func envFor(c *command.Command, root, targetRoot string) []string {
	env := make([]string, 0, c.Runtime.Env.Len()+2)
	env = append(env, fmt.Sprintf("SMELT_ROOT=%s", root), fmt.Sprintf("TARGET_ROOT=%s", targetRoot))
	for _, k := range c.Runtime.Env.Keys() {
		v, _ := c.Runtime.Env.Get(k)
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// remoteScript synthesizes the single self-contained "bash -c" command
// Remote mode runs (§4.6): with no source bind-mount, the export preamble
// and script body that workspace.Build would otherwise write to command.sh
// are inlined directly, and the working directory is the artifact bind
// mount rather than the real target root.
func remoteScript(c *command.Command, root, artifactDir string) string {
	lines := []string{
		fmt.Sprintf("export SMELT_ROOT=%q", root),
		fmt.Sprintf("export TARGET_ROOT=%q", artifactDir),
		fmt.Sprintf("cd %q", artifactDir),
	}
	lines = append(lines, c.ScriptLines()...)
	return strings.Join(lines, " && ")
}

func toDockerUlimits(in []protocol.Ulimit) []*units.Ulimit {
	out := make([]*units.Ulimit, 0, len(in))
	for _, u := range in {
		out = append(out, &units.Ulimit{Name: u.Name, Soft: u.Soft, Hard: u.Hard})
	}
	return out
}

// parsePlatform parses a "os[/arch]" platform string (e.g. "linux/arm64")
// into the OCI platform ContainerCreate accepts.
func parsePlatform(p string) *ocispec.Platform {
	parts := strings.SplitN(p, "/", 2)
	plat := &ocispec.Platform{OS: parts[0]}
	if len(parts) > 1 {
		plat.Architecture = parts[1]
	}
	return plat
}
