package profiler

import (
	"context"
	"encoding/json"
	"fmt"

	containertypes "github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
)

// ContainerSampler reads the Docker stats endpoint's cumulative counters
// for one container. Unlike ProcessTreeSampler, the daemon already reports
// cumulative CPU nanoseconds, so Sample needs no own bookkeeping beyond
// what profiler.Run already does generically.
type ContainerSampler struct {
	cli         *dockerclient.Client
	containerID string
}

// NewContainerSampler builds a sampler for a running container.
func NewContainerSampler(cli *dockerclient.Client, containerID string) *ContainerSampler {
	return &ContainerSampler{cli: cli, containerID: containerID}
}

// dockerStats mirrors the subset of the /containers/{id}/stats response
// this sampler reads.
type dockerStats struct {
	CPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemCPUUsage uint64 `json:"system_cpu_usage"`
		OnlineCPUs     uint64 `json:"online_cpus"`
	} `json:"cpu_stats"`
	MemoryStats struct {
		Usage uint64            `json:"usage"`
		Stats map[string]uint64 `json:"stats"`
	} `json:"memory_stats"`
}

func (s *ContainerSampler) Sample() (memoryBytes uint64, cpuTimeNanos uint64, err error) {
	resp, err := s.cli.ContainerStats(context.Background(), s.containerID, false)
	if err != nil {
		return 0, 0, fmt.Errorf("read stats for container %s: %w", s.containerID, err)
	}
	defer resp.Body.Close()

	var stats dockerStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, 0, fmt.Errorf("decode stats for container %s: %w", s.containerID, err)
	}

	memoryBytes = resolveMemoryUsage(stats.MemoryStats.Usage, stats.MemoryStats.Stats)
	cpuTimeNanos = stats.CPUStats.CPUUsage.TotalUsage
	return memoryBytes, cpuTimeNanos, nil
}

// resolveMemoryUsage subtracts reclaimable page cache from the raw usage
// counter, handling both the cgroup v1 ("cache") and v2 ("inactive_file")
// stat dialects the Docker stats endpoint may report.
func resolveMemoryUsage(usage uint64, stats map[string]uint64) uint64 {
	if cache, ok := stats["inactive_file"]; ok && cache <= usage {
		return usage - cache
	}
	if cache, ok := stats["cache"]; ok && cache <= usage {
		return usage - cache
	}
	return usage
}

var _ Sampler = (*ContainerSampler)(nil)
