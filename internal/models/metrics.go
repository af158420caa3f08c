package models

import "time"

// MetricSnapshot is a point-in-time view of the monitored system, pulled
// fresh on each evaluation cycle and never persisted.
type MetricSnapshot struct {
	Counters   map[string]float64
	Gauges     map[string]float64
	Histograms map[string]HistogramStats
	At         time.Time
}

// HistogramStats summarises a named histogram.
type HistogramStats struct {
	Count float64
	Sum   float64
	Avg   float64
	P50   float64
	P90   float64
	P95   float64
	P99   float64
}

// Counter returns the named counter, or zero when absent.
func (s MetricSnapshot) Counter(name string) float64 {
	return s.Counters[name]
}

// Gauge returns the named gauge, or zero when absent.
func (s MetricSnapshot) Gauge(name string) float64 {
	return s.Gauges[name]
}

// Histogram returns the named histogram stats and whether they exist.
func (s MetricSnapshot) Histogram(name string) (HistogramStats, bool) {
	h, ok := s.Histograms[name]
	return h, ok
}

// SystemMetrics captures host-level readings at healing execution time.
type SystemMetrics struct {
	CPUPercent    float64
	MemoryPercent float64
	Load1         float64
	Goroutines    int
}
