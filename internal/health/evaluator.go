package health

import (
	"context"
	"log/slog"

	"github.com/sentinelstack/sentinel-heal/internal/models"
	"github.com/sentinelstack/sentinel-heal/internal/source"
)

// Metric names expected from the ops metrics source.
const (
	counterRequests        = "requests_total"
	counterRequestErrors   = "request_errors_total"
	counterAgentExecutions = "agent_executions_total"
	counterAgentFailures   = "agent_failures_total"
	gaugeMemoryRatio       = "memory_usage_ratio"
	histRequestDuration    = "http_request_duration_ms"
	histDBQueryDuration    = "db_query_duration_ms"
	histWSMessageDuration  = "ws_message_duration_ms"
)

// Thresholds configures when each check fires.
type Thresholds struct {
	ErrorRate         float64
	ResponseP95Ms     float64
	MemoryRatio       float64
	AgentFailureRatio float64
	DatabaseP95Ms     float64
	WebsocketP95Ms    float64
	MinSamples        float64
}

// DefaultThresholds returns the standard check configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorRate:         0.15,
		ResponseP95Ms:     2000,
		MemoryRatio:       0.85,
		AgentFailureRatio: 0.30,
		DatabaseP95Ms:     500,
		WebsocketP95Ms:    1000,
		MinSamples:        10,
	}
}

// Map returns the thresholds as a flat map for status reporting.
func (t Thresholds) Map() map[string]float64 {
	return map[string]float64{
		"error_rate":          t.ErrorRate,
		"response_p95_ms":     t.ResponseP95Ms,
		"memory_ratio":        t.MemoryRatio,
		"agent_failure_ratio": t.AgentFailureRatio,
		"database_p95_ms":     t.DatabaseP95Ms,
		"websocket_p95_ms":    t.WebsocketP95Ms,
	}
}

// Evaluator pulls one metric snapshot per tick and runs a fixed set of
// independent checks, each producing at most one issue candidate.
type Evaluator struct {
	source     source.Source
	thresholds Thresholds
	logger     *slog.Logger
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(logger *slog.Logger, src source.Source, thresholds Thresholds) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	return &Evaluator{source: src, thresholds: thresholds, logger: logger}
}

// Thresholds exposes the configured thresholds for status reporting.
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate pulls a snapshot and returns the candidates from every check
// that fired this tick. A failed metric pull degrades to "skip this tick".
func (e *Evaluator) Evaluate(ctx context.Context) []models.IssueCandidate {
	if e.source == nil {
		return nil
	}

	snapshot, err := e.source.Snapshot(ctx)
	if err != nil {
		e.logger.Warn("metric pull failed, skipping evaluation tick", slog.Any("error", err))
		return nil
	}

	checks := []func(models.MetricSnapshot) *models.IssueCandidate{
		e.checkErrorRate,
		e.checkResponseTime,
		e.checkMemoryUsage,
		e.checkAgentFailures,
		e.checkDatabase,
		e.checkWebsocket,
	}

	candidates := make([]models.IssueCandidate, 0)
	for _, check := range checks {
		if candidate := check(snapshot); candidate != nil {
			candidates = append(candidates, *candidate)
		}
	}
	return candidates
}

func (e *Evaluator) checkErrorRate(snapshot models.MetricSnapshot) *models.IssueCandidate {
	requests := snapshot.Counter(counterRequests)
	if requests < e.thresholds.MinSamples {
		return nil
	}
	rate := snapshot.Counter(counterRequestErrors) / requests
	if rate <= e.thresholds.ErrorRate {
		return nil
	}
	return &models.IssueCandidate{
		Type:     models.IssueHighErrorRate,
		Severity: severityForRatio(rate, e.thresholds.ErrorRate),
		Context: map[string]any{
			"current_value": rate,
			"error_rate":    rate,
			"threshold":     e.thresholds.ErrorRate,
			"sample_count":  requests,
		},
	}
}

func (e *Evaluator) checkResponseTime(snapshot models.MetricSnapshot) *models.IssueCandidate {
	stats, ok := snapshot.Histogram(histRequestDuration)
	if !ok || stats.Count < e.thresholds.MinSamples {
		return nil
	}
	if stats.P95 <= e.thresholds.ResponseP95Ms {
		return nil
	}
	return &models.IssueCandidate{
		Type:     models.IssueSlowResponse,
		Severity: severityForRatio(stats.P95, e.thresholds.ResponseP95Ms),
		Context: map[string]any{
			"current_value": stats.P95,
			"p95_ms":        stats.P95,
			"threshold":     e.thresholds.ResponseP95Ms,
			"sample_count":  stats.Count,
		},
	}
}

func (e *Evaluator) checkMemoryUsage(snapshot models.MetricSnapshot) *models.IssueCandidate {
	ratio := snapshot.Gauge(gaugeMemoryRatio)
	if ratio <= e.thresholds.MemoryRatio {
		return nil
	}
	return &models.IssueCandidate{
		Type:     models.IssueMemoryPressure,
		Severity: severityForRatio(ratio, e.thresholds.MemoryRatio),
		Context: map[string]any{
			"current_value": ratio,
			"memory_ratio":  ratio,
			"threshold":     e.thresholds.MemoryRatio,
		},
	}
}

func (e *Evaluator) checkAgentFailures(snapshot models.MetricSnapshot) *models.IssueCandidate {
	executions := snapshot.Counter(counterAgentExecutions)
	if executions < e.thresholds.MinSamples {
		return nil
	}
	ratio := snapshot.Counter(counterAgentFailures) / executions
	if ratio <= e.thresholds.AgentFailureRatio {
		return nil
	}
	return &models.IssueCandidate{
		Type:     models.IssueAgentFailures,
		Severity: severityForRatio(ratio, e.thresholds.AgentFailureRatio),
		Context: map[string]any{
			"current_value": ratio,
			"failure_ratio": ratio,
			"threshold":     e.thresholds.AgentFailureRatio,
			"sample_count":  executions,
		},
	}
}

func (e *Evaluator) checkDatabase(snapshot models.MetricSnapshot) *models.IssueCandidate {
	stats, ok := snapshot.Histogram(histDBQueryDuration)
	if !ok || stats.Count < e.thresholds.MinSamples {
		return nil
	}
	if stats.P95 <= e.thresholds.DatabaseP95Ms {
		return nil
	}
	return &models.IssueCandidate{
		Type:     models.IssueSlowDatabase,
		Severity: severityForRatio(stats.P95, e.thresholds.DatabaseP95Ms),
		Context: map[string]any{
			"current_value": stats.P95,
			"p95_ms":        stats.P95,
			"threshold":     e.thresholds.DatabaseP95Ms,
			"sample_count":  stats.Count,
		},
	}
}

func (e *Evaluator) checkWebsocket(snapshot models.MetricSnapshot) *models.IssueCandidate {
	stats, ok := snapshot.Histogram(histWSMessageDuration)
	if !ok || stats.Count < e.thresholds.MinSamples {
		return nil
	}
	if stats.P95 <= e.thresholds.WebsocketP95Ms {
		return nil
	}
	return &models.IssueCandidate{
		Type:     models.IssueWebsocketBacklog,
		Severity: severityForRatio(stats.P95, e.thresholds.WebsocketP95Ms),
		Context: map[string]any{
			"current_value": stats.P95,
			"p95_ms":        stats.P95,
			"threshold":     e.thresholds.WebsocketP95Ms,
			"sample_count":  stats.Count,
		},
	}
}

// severityForRatio grades how far a reading sits above its threshold,
// mirroring z-score severity bands: 2x critical, 1.5x high, 1.2x warning.
func severityForRatio(value, threshold float64) models.Severity {
	if threshold <= 0 {
		return models.SeverityMedium
	}
	switch ratio := value / threshold; {
	case ratio >= 2.0:
		return models.SeverityCritical
	case ratio >= 1.5:
		return models.SeverityHigh
	case ratio >= 1.2:
		return models.SeverityWarning
	default:
		return models.SeverityMedium
	}
}
