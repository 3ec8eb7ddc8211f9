// Package gopsutil samples OS process resource usage for the monitor loop.
package gopsutil

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/Strob0t/AgentForge/internal/port/sampling"
)

// Sampler reads CPU and memory usage from the OS for a given pid.
type Sampler struct{}

// New creates a process sampler.
func New() *Sampler { return &Sampler{} }

// Sample reads the current RSS and CPU percentage of the process. It fails
// when the process has already exited, which callers treat as a skipped
// sample rather than a limit breach.
func (s *Sampler) Sample(ctx context.Context, pid int) (sampling.Usage, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid)) //nolint:gosec // G115: pids fit in int32
	if err != nil {
		return sampling.Usage{}, fmt.Errorf("open process %d: %w", pid, err)
	}

	var usage sampling.Usage

	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		usage.RSSBytes = int64(mem.RSS) //nolint:gosec // G115: RSS fits in int64
	}

	cpu, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return usage, fmt.Errorf("cpu percent for %d: %w", pid, err)
	}
	usage.CPUPercent = cpu

	return usage, nil
}
