package profiler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smeltrun/smelt/internal/protocol"
)

type fakeSampler struct {
	mu      sync.Mutex
	samples []struct {
		mem uint64
		cpu uint64
	}
	i int
}

func (f *fakeSampler) Sample() (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.i >= len(f.samples) {
		f.i = len(f.samples) - 1
	}
	s := f.samples[f.i]
	f.i++
	return s.mem, s.cpu, nil
}

type fakeSink struct {
	mu      sync.Mutex
	samples []protocol.CommandProfile
}

func (f *fakeSink) Profile(p protocol.CommandProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, p)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func TestRunEmitsNoEventOnFirstSample(t *testing.T) {
	sampler := &fakeSampler{samples: []struct {
		mem uint64
		cpu uint64
	}{{100, 1000}}}
	sink := &fakeSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	Run(ctx, sampler, 10*time.Millisecond, sink)

	// Only one tick fits before ctx expires; that first sample only seeds
	// the baseline, so nothing is emitted.
	require.Equal(t, 0, sink.count())
}

func TestRunEmitsDeltaFromSecondSample(t *testing.T) {
	sampler := &fakeSampler{samples: []struct {
		mem uint64
		cpu uint64
	}{
		{100, 1_000_000},
		{200, 2_000_000},
		{300, 3_000_000},
	}}
	sink := &fakeSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	Run(ctx, sampler, 10*time.Millisecond, sink)

	require.GreaterOrEqual(t, sink.count(), 1)
	first := sink.samples[0]
	require.Equal(t, uint64(200), first.MemoryUsed)
	require.Greater(t, first.CPULoad, 0.0)
}

func TestResolveMemoryUsageSubtractsCacheDialects(t *testing.T) {
	require.Equal(t, uint64(80), resolveMemoryUsage(100, map[string]uint64{"cache": 20}))
	require.Equal(t, uint64(70), resolveMemoryUsage(100, map[string]uint64{"inactive_file": 30}))
	require.Equal(t, uint64(100), resolveMemoryUsage(100, map[string]uint64{}))
}
