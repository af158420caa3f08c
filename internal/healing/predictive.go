package healing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sentinelstack/sentinel-heal/internal/models"
	"github.com/sentinelstack/sentinel-heal/internal/source"
)

// Baselines maintains per-metric EWMA means and Holt-Winters level/trend
// state so the analyzer can score where a metric is heading, not just where
// it is.
type Baselines struct {
	mu        sync.Mutex
	ewmaAlpha float64
	hwAlpha   float64
	hwBeta    float64
	means     map[string]float64
	levels    map[string]float64
	trends    map[string]float64
}

// NewBaselines constructs baseline state with standard smoothing factors.
func NewBaselines() *Baselines {
	return &Baselines{
		ewmaAlpha: 0.3,
		hwAlpha:   0.2,
		hwBeta:    0.1,
		means:     make(map[string]float64),
		levels:    make(map[string]float64),
		trends:    make(map[string]float64),
	}
}

// Observe folds one reading per metric into the smoothed state.
func (b *Baselines) Observe(readings map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for metric, value := range readings {
		mean, ok := b.means[metric]
		if !ok {
			mean = value
		}
		b.means[metric] = b.ewmaAlpha*value + (1-b.ewmaAlpha)*mean

		level, ok := b.levels[metric]
		if !ok {
			b.levels[metric] = value
			b.trends[metric] = 0
			continue
		}
		trend := b.trends[metric]
		newLevel := b.hwAlpha*value + (1-b.hwAlpha)*(level+trend)
		b.trends[metric] = b.hwBeta*(newLevel-level) + (1-b.hwBeta)*trend
		b.levels[metric] = newLevel
	}
}

// Forecast projects the metric the given number of steps ahead using the
// Holt-Winters level and trend. Unknown metrics fall back to the EWMA mean.
func (b *Baselines) Forecast(metric string, steps int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	level, ok := b.levels[metric]
	if !ok {
		return b.means[metric]
	}
	return level + float64(steps)*b.trends[metric]
}

// Trend returns the current Holt-Winters trend for the metric, zero when
// the metric has not been observed.
func (b *Baselines) Trend(metric string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trends[metric]
}

// AnalyzerConfig tunes the predictive risk scoring.
type AnalyzerConfig struct {
	// RiskThreshold is the score above which a preventive candidate is
	// synthesized.
	RiskThreshold float64
	// ErrorRateScale stretches the error-rate gauge into a risk score.
	ErrorRateScale float64
	// ResponseCeilingMs is the p95 at which response risk saturates at 1.
	ResponseCeilingMs float64
}

// DefaultAnalyzerConfig returns the standard analyzer tuning.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		RiskThreshold:     0.8,
		ErrorRateScale:    3,
		ResponseCeilingMs: 5000,
	}
}

// PatternSource supplies historically mined leading-indicator patterns.
type PatternSource interface {
	PrecedingPatterns(ctx context.Context, issueType models.IssueType) ([]models.PrecedingPattern, error)
}

// Analyzer scores leading indicators on a longer tick and synthesizes
// preventive candidates that reuse the reactive cooldown and executor path.
type Analyzer struct {
	source    source.Source
	baselines *Baselines
	patterns  PatternSource
	cfg       AnalyzerConfig
	logger    *slog.Logger
}

// NewAnalyzer constructs an Analyzer. patternSrc may be nil; risk scoring
// then runs on live trends alone.
func NewAnalyzer(logger *slog.Logger, src source.Source, baselines *Baselines, patternSrc PatternSource, cfg AnalyzerConfig) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if baselines == nil {
		baselines = NewBaselines()
	}
	if cfg.RiskThreshold <= 0 || cfg.RiskThreshold > 1 {
		cfg.RiskThreshold = 0.8
	}
	if cfg.ErrorRateScale <= 0 {
		cfg.ErrorRateScale = 3
	}
	if cfg.ResponseCeilingMs <= 0 {
		cfg.ResponseCeilingMs = 5000
	}
	return &Analyzer{source: src, baselines: baselines, patterns: patternSrc, cfg: cfg, logger: logger}
}

// Evaluate pulls a snapshot, updates predictive baselines, and returns one
// preventive candidate per risk that clears the threshold.
func (a *Analyzer) Evaluate(ctx context.Context) []models.IssueCandidate {
	if a.source == nil {
		return nil
	}

	snapshot, err := a.source.Snapshot(ctx)
	if err != nil {
		a.logger.Warn("metric pull failed, skipping predictive tick", slog.Any("error", err))
		return nil
	}

	memoryRatio := snapshot.Gauge("memory_usage_ratio")
	errorRate := snapshot.Gauge("error_rate")
	responseP95 := 0.0
	if stats, ok := snapshot.Histogram("http_request_duration_ms"); ok {
		responseP95 = stats.P95
	}

	a.baselines.Observe(map[string]float64{
		"memory_usage_ratio": memoryRatio,
		"error_rate":         errorRate,
		"response_p95_ms":    responseP95,
	})

	risks := []struct {
		metric    string
		issueType models.IssueType
		score     float64
	}{
		{metric: "memory_trend", issueType: models.IssueMemoryPressure, score: clampRisk(memoryRatio)},
		{metric: "error_trend", issueType: models.IssueHighErrorRate, score: clampRisk(errorRate * a.cfg.ErrorRateScale)},
		{metric: "response_trend", issueType: models.IssueSlowResponse, score: clampRisk(responseP95 / a.cfg.ResponseCeilingMs)},
	}

	for i := range risks {
		risks[i].score = clampRisk(risks[i].score + a.patternBoost(ctx, risks[i].issueType))
	}

	candidates := make([]models.IssueCandidate, 0)
	for _, risk := range risks {
		if risk.score <= a.cfg.RiskThreshold {
			continue
		}
		severity := models.SeverityWarning
		if risk.score >= 0.9 {
			severity = models.SeverityHigh
		}
		candidates = append(candidates, models.IssueCandidate{
			Type:     risk.issueType,
			Severity: severity,
			Context: map[string]any{
				"preventive": true,
				"metric":     risk.metric,
				"risk_score": risk.score,
				"threshold":  a.cfg.RiskThreshold,
				"forecast":   a.baselines.Forecast(forecastKey(risk.metric), 1),
			},
		})
		a.logger.Info("preventive candidate synthesized",
			slog.String("metric", risk.metric),
			slog.Float64("risk_score", risk.score))
	}
	return candidates
}

// patternBoost raises an issue's risk when a mined leading indicator for it
// is currently rising. The strongest matching pattern wins; lookup failures
// leave the live score untouched.
func (a *Analyzer) patternBoost(ctx context.Context, issueType models.IssueType) float64 {
	if a.patterns == nil {
		return 0
	}
	mined, err := a.patterns.PrecedingPatterns(ctx, issueType)
	if err != nil {
		a.logger.Warn("preceding pattern lookup failed",
			slog.String("issue_type", string(issueType)), slog.Any("error", err))
		return 0
	}

	best := 0.0
	for _, pattern := range mined {
		if pattern.Direction != "rising" {
			continue
		}
		key, ok := baselineKey(pattern.Metric)
		if !ok {
			continue
		}
		if a.baselines.Trend(key) > 0 && pattern.Confidence > best {
			best = pattern.Confidence
		}
	}
	return 0.3 * best
}

func baselineKey(metric string) (string, bool) {
	switch metric {
	case "memory_usage_ratio", "error_rate":
		return metric, true
	case "http_request_duration_ms":
		return "response_p95_ms", true
	default:
		return "", false
	}
}

func forecastKey(riskMetric string) string {
	switch riskMetric {
	case "memory_trend":
		return "memory_usage_ratio"
	case "error_trend":
		return "error_rate"
	default:
		return "response_p95_ms"
	}
}

func clampRisk(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
