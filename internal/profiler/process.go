package profiler

import (
	"fmt"

	gopsprocess "github.com/shirou/gopsutil/v4/process"
)

// ProcessTreeSampler sums RSS and cumulative CPU time across a root pid and
// every descendant, grounded on the original's sample_memory_and_load
// (sum over ByParentProcess-filtered pids plus the root pid itself).
type ProcessTreeSampler struct {
	pid int32
}

// NewProcessTreeSampler builds a sampler rooted at pid.
func NewProcessTreeSampler(pid int32) *ProcessTreeSampler {
	return &ProcessTreeSampler{pid: pid}
}

func (s *ProcessTreeSampler) Sample() (memoryBytes uint64, cpuTimeNanos uint64, err error) {
	root, err := gopsprocess.NewProcess(s.pid)
	if err != nil {
		return 0, 0, fmt.Errorf("look up pid %d: %w", s.pid, err)
	}

	procs := []*gopsprocess.Process{root}
	children, err := collectDescendants(root)
	if err == nil {
		procs = append(procs, children...)
	}

	for _, p := range procs {
		if mem, merr := p.MemoryInfo(); merr == nil && mem != nil {
			memoryBytes += mem.RSS
		}
		if times, terr := p.Times(); terr == nil && times != nil {
			cpuTimeNanos += uint64((times.User + times.System) * float64(1e9))
		}
	}
	return memoryBytes, cpuTimeNanos, nil
}

func collectDescendants(p *gopsprocess.Process) ([]*gopsprocess.Process, error) {
	children, err := p.Children()
	if err != nil {
		return nil, err
	}
	var out []*gopsprocess.Process
	for _, c := range children {
		out = append(out, c)
		grandchildren, err := collectDescendants(c)
		if err == nil {
			out = append(out, grandchildren...)
		}
	}
	return out, nil
}

var _ Sampler = (*ProcessTreeSampler)(nil)
