package patterns

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

// Store abstracts persistence for mined patterns.
type Store interface {
	StorePatterns(ctx context.Context, patterns []models.PrecedingPattern) error
}

// Miner mines simple frequency-based preceding patterns from healing event
// history: issue types that repeatedly occur shortly before another issue
// type become leading indicators for it.
type Miner struct {
	store          Store
	logger         *slog.Logger
	leadWindow     time.Duration
	minOccurrences int
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, store Store, leadWindow time.Duration, minOccurrences int) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	if leadWindow <= 0 {
		leadWindow = 15 * time.Minute
	}
	if minOccurrences <= 0 {
		minOccurrences = 3
	}
	return &Miner{
		store:          store,
		logger:         logger,
		leadWindow:     leadWindow,
		minOccurrences: minOccurrences,
	}
}

// primaryMetric maps each issue type to the metric its check reads.
var primaryMetric = map[models.IssueType]string{
	models.IssueHighErrorRate:    "error_rate",
	models.IssueSlowResponse:     "http_request_duration_ms",
	models.IssueMemoryPressure:   "memory_usage_ratio",
	models.IssueAgentFailures:    "agent_failures_total",
	models.IssueSlowDatabase:     "db_query_duration_ms",
	models.IssueWebsocketBacklog: "ws_message_duration_ms",
	models.IssueDegradation:      "error_rate",
	models.IssueBackpressure:     "http_request_duration_ms",
	models.IssueResourceHotspot:  "memory_usage_ratio",
	models.IssueConfigDependency: "error_rate",
}

// Mine analyses event history and returns aggregated preceding patterns.
func (m *Miner) Mine(ctx context.Context, events []models.HealingEvent) ([]models.PrecedingPattern, error) {
	if len(events) < 2 {
		return nil, nil
	}

	ordered := make([]models.HealingEvent, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	type pairKey struct {
		target models.IssueType
		metric string
	}
	type pairAggregate struct {
		occurrences int
		totalLead   time.Duration
	}

	totals := make(map[models.IssueType]int)
	pairs := make(map[pairKey]*pairAggregate)

	for i, target := range ordered {
		totals[target.IssueType]++
		for j := i - 1; j >= 0; j-- {
			lead := target.Timestamp.Sub(ordered[j].Timestamp)
			if lead > m.leadWindow {
				break
			}
			if ordered[j].IssueType == target.IssueType {
				continue
			}
			metric, ok := primaryMetric[ordered[j].IssueType]
			if !ok {
				continue
			}
			key := pairKey{target: target.IssueType, metric: metric}
			agg, ok := pairs[key]
			if !ok {
				agg = &pairAggregate{}
				pairs[key] = agg
			}
			agg.occurrences++
			agg.totalLead += lead
		}
	}

	patterns := make([]models.PrecedingPattern, 0, len(pairs))
	for key, agg := range pairs {
		if agg.occurrences < m.minOccurrences {
			continue
		}
		patterns = append(patterns, models.PrecedingPattern{
			IssueType:   key.target,
			Metric:      key.metric,
			Direction:   "rising",
			TypicalLead: agg.totalLead / time.Duration(agg.occurrences),
			Confidence:  float64(agg.occurrences) / float64(totals[key.target]),
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Confidence != patterns[j].Confidence {
			return patterns[i].Confidence > patterns[j].Confidence
		}
		return patterns[i].IssueType < patterns[j].IssueType
	})

	if m.store != nil && len(patterns) > 0 {
		if err := m.store.StorePatterns(ctx, patterns); err != nil {
			m.logger.Warn("pattern store failed", slog.Any("error", err))
		}
	}

	return patterns, nil
}
