package platform

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time read of process/host resource usage.
type Snapshot struct {
	CPUPercent     float64
	MemoryUsedPct  float64
	Goroutines     int
	MemoryLimitBts int64
}

// Collect samples CPU and memory via gopsutil plus the cgroup-reported
// container limit.
func Collect(ctx context.Context) Snapshot {
	snap := Snapshot{Goroutines: runtime.NumGoroutine()}

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		snap.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemoryUsedPct = vm.UsedPercent
	}
	if limit, err := MemoryLimitBytes(); err == nil {
		snap.MemoryLimitBts = limit
	}

	return snap
}
