// Package profiler samples a running command's resource usage — memory and
// CPU load, summed across the command's process tree (or, for Docker,
// the container's cgroup) — on a fixed tick, grounded on the original's
// crates/smelt-graph/src/executor/profiler.rs sample loop: sample, diff
// against the previous cumulative cpu time, emit a CommandProfile, sleep.
package profiler

import (
	"context"
	"time"

	"github.com/smeltrun/smelt/internal/protocol"
)

// Sink receives one profile sample per tick.
type Sink interface {
	Profile(protocol.CommandProfile)
}

// Sampler abstracts a single resource-usage reading.
type Sampler interface {
	// Sample returns cumulative memory bytes and cumulative CPU time used
	// so far (user+system, summed across the process tree or container).
	Sample() (memoryBytes uint64, cpuTimeNanos uint64, err error)
}

// Run samples sampler every interval until ctx is done, computing a
// cpu_load ratio (cpu time consumed / wall time elapsed between samples)
// and forwarding each delta to sink. The first sample only seeds the
// baseline; no event is emitted until a second sample exists to diff
// against, matching the original's "emit only once previous sample
// exists" behavior.
func Run(ctx context.Context, sampler Sampler, interval time.Duration, sink Sink) {
	start := time.Now()
	var havePrev bool
	var prevCPU uint64
	var prevTime time.Time

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		mem, cpu, err := sampler.Sample()
		now := time.Now()
		if err != nil {
			continue
		}

		if havePrev {
			elapsed := now.Sub(prevTime)
			var cpuLoad float64
			if elapsed > 0 {
				cpuDelta := int64(cpu) - int64(prevCPU)
				if cpuDelta < 0 {
					cpuDelta = 0
				}
				cpuLoad = float64(cpuDelta) / float64(elapsed.Nanoseconds())
			}
			sink.Profile(protocol.CommandProfile{
				MemoryUsed:       mem,
				CPULoad:          cpuLoad,
				TimeSinceStartMs: uint64(now.Sub(start).Milliseconds()),
			})
		}

		prevCPU = cpu
		prevTime = now
		havePrev = true
	}
}
