package source

import (
	"context"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

// Source exposes the current counters, gauges, and histogram summaries of
// the monitored system. Implementations pull on demand; nothing is cached
// between evaluation cycles.
type Source interface {
	Counters(ctx context.Context) (map[string]float64, error)
	Gauges(ctx context.Context) (map[string]float64, error)
	HistogramStats(ctx context.Context, name string) (models.HistogramStats, error)
	Snapshot(ctx context.Context) (models.MetricSnapshot, error)
}
