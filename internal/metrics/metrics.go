package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels healing attempts whose verification passed.
	OutcomeSuccess = "success"
	// OutcomeFailure labels healing attempts that did not resolve the issue.
	OutcomeFailure = "failure"
)

var (
	healingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel_heal",
			Name:      "healings_total",
			Help:      "Total number of healing attempts executed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	healingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentinel_heal",
			Name:      "healing_seconds",
			Help:      "Healing attempt latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	candidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel_heal",
			Name:      "candidates_total",
			Help:      "Issue candidates detected by the health and predictive evaluators.",
		},
		[]string{"issue_type"},
	)

	suppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel_heal",
			Name:      "suppressed_total",
			Help:      "Healing attempts skipped because the issue was under cooldown.",
		},
		[]string{"issue_type"},
	)
)

// Register attaches sentinel-heal collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		healingsTotal,
		healingDurationSeconds,
		candidatesTotal,
		suppressedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveHealing records a healing attempt duration and outcome label.
func ObserveHealing(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeFailure {
		label = OutcomeSuccess
	}
	healingsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	healingDurationSeconds.Observe(duration.Seconds())
}

// IncCandidate counts a detected issue candidate.
func IncCandidate(issueType string) {
	candidatesTotal.WithLabelValues(issueType).Inc()
}

// IncSuppressed counts a healing attempt skipped by cooldown.
func IncSuppressed(issueType string) {
	suppressedTotal.WithLabelValues(issueType).Inc()
}
