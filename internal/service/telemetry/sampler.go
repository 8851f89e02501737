package telemetry

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceSample is a point-in-time reading of process resource usage
type ResourceSample struct {
	MemoryMB   float64
	CPUPercent float64
}

// Sampler reads resource usage after an operation completes
type Sampler interface {
	Sample(ctx context.Context) (ResourceSample, error)
}

// ProcessSampler samples the current process with gopsutil
type ProcessSampler struct {
	proc *process.Process
}

// NewProcessSampler creates a sampler for the running process
func NewProcessSampler(ctx context.Context) (*ProcessSampler, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open process: %w", err)
	}
	return &ProcessSampler{proc: proc}, nil
}

// Sample returns resident memory in MB and CPU usage since process start
func (s *ProcessSampler) Sample(ctx context.Context) (ResourceSample, error) {
	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("failed to read memory info: %w", err)
	}

	cpuPercent, err := s.proc.CPUPercentWithContext(ctx)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}

	return ResourceSample{
		MemoryMB:   float64(mem.RSS) / 1024 / 1024,
		CPUPercent: cpuPercent,
	}, nil
}
