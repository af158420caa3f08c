package source

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

// SystemSampler reads host-level metrics attached to healing events so an
// outcome can later be judged against the conditions it ran under.
type SystemSampler struct{}

// NewSystemSampler constructs a SystemSampler.
func NewSystemSampler() *SystemSampler {
	return &SystemSampler{}
}

// Sample reads the current host state. Individual probe failures leave the
// corresponding field zero rather than failing the whole sample.
func (s *SystemSampler) Sample(ctx context.Context) models.SystemMetrics {
	metrics := models.SystemMetrics{Goroutines: runtime.NumGoroutine()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		metrics.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		metrics.MemoryPercent = vm.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		metrics.Load1 = avg.Load1
	}

	return metrics
}
