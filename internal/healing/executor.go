package healing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstack/sentinel-heal/internal/knowledge"
	"github.com/sentinelstack/sentinel-heal/internal/metrics"
	"github.com/sentinelstack/sentinel-heal/internal/models"
	"github.com/sentinelstack/sentinel-heal/internal/similarity"
	"github.com/sentinelstack/sentinel-heal/internal/source"
)

// Verifier is an optional caller-supplied check invoked once after the
// action sequence to confirm recovery independent of the metric heuristic.
type Verifier func(ctx context.Context) (bool, error)

// ExecutorConfig tunes execution behaviour.
type ExecutorConfig struct {
	// ImprovementMargin is the relative metric improvement that ends the
	// action sequence early.
	ImprovementMargin float64
	// ActionTimeout bounds each individual action; timeout counts as
	// action failure.
	ActionTimeout time.Duration
	// OverallBudget bounds one whole healing run wall-clock.
	OverallBudget time.Duration
	// RecentEvents is how many completed events are retained for status.
	RecentEvents int
	// SimilarityThreshold is the minimum signature similarity for a past
	// event to inform strategy ordering.
	SimilarityThreshold float64
	// MaxSimilar caps how many past events are consulted per run.
	MaxSimilar int
}

// DefaultExecutorConfig returns production defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		ImprovementMargin:   0.20,
		ActionTimeout:       30 * time.Second,
		OverallBudget:       2 * time.Minute,
		RecentEvents:        50,
		SimilarityThreshold: 0.75,
		MaxSimilar:          5,
	}
}

// Executor runs the diagnosed-executing-verifying-completed sequence for
// one issue candidate and always records exactly one healing event.
type Executor struct {
	logger    *slog.Logger
	source    source.Source
	sampler   *source.SystemSampler
	knowledge *knowledge.Client
	recency   *knowledge.RecencyCache
	sim       *similarity.Engine
	catalogue *Catalogue
	cooldowns *CooldownManager
	stats     *StrategyStats
	hooks     Hooks
	verifier  Verifier
	cfg       ExecutorConfig
	now       func() time.Time

	mu       sync.Mutex
	inflight map[cooldownKey]struct{}
	recent   []models.HealingEvent
}

// NewExecutor constructs an Executor.
func NewExecutor(
	logger *slog.Logger,
	src source.Source,
	sampler *source.SystemSampler,
	knowledgeClient *knowledge.Client,
	recency *knowledge.RecencyCache,
	sim *similarity.Engine,
	catalogue *Catalogue,
	cooldowns *CooldownManager,
	stats *StrategyStats,
	hooks Hooks,
	verifier Verifier,
	cfg ExecutorConfig,
	now func() time.Time,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if sim == nil {
		sim = similarity.NewEngine(similarity.DefaultWeights(), 0)
	}
	if catalogue == nil {
		catalogue = NewCatalogue()
	}
	if cooldowns == nil {
		cooldowns = NewCooldownManager(DefaultCooldownWindows(), now)
	}
	if stats == nil {
		stats = NewStrategyStats()
	}
	if cfg.ImprovementMargin <= 0 {
		cfg.ImprovementMargin = 0.20
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 30 * time.Second
	}
	if cfg.OverallBudget <= 0 {
		cfg.OverallBudget = 2 * time.Minute
	}
	if cfg.RecentEvents <= 0 {
		cfg.RecentEvents = 50
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.75
	}
	if cfg.MaxSimilar <= 0 {
		cfg.MaxSimilar = 5
	}
	if now == nil {
		now = time.Now
	}
	return &Executor{
		logger:    logger,
		source:    src,
		sampler:   sampler,
		knowledge: knowledgeClient,
		recency:   recency,
		sim:       sim,
		catalogue: catalogue,
		cooldowns: cooldowns,
		stats:     stats,
		hooks:     hooks,
		verifier:  verifier,
		cfg:       cfg,
		now:       now,
		inflight:  make(map[cooldownKey]struct{}),
	}
}

// Heal runs the full sequence for one candidate. It never returns an error
// to the caller: failures are captured in the recorded event. The bool
// reports whether a healing was actually attempted (false when suppressed,
// discarded, or already in flight).
func (e *Executor) Heal(ctx context.Context, candidate models.IssueCandidate) (models.HealingEvent, bool) {
	if candidate.Type == "" || candidate.Context == nil {
		e.logger.Warn("discarding malformed issue candidate",
			slog.String("issue_type", string(candidate.Type)))
		return models.HealingEvent{}, false
	}

	defaults := e.catalogue.ForIssue(candidate.Type)
	if len(defaults) == 0 {
		e.logger.Warn("no strategy registered for issue type",
			slog.String("issue_type", string(candidate.Type)))
		return models.HealingEvent{}, false
	}

	if !e.cooldowns.ShouldFire(candidate.Type, candidate.Severity) {
		metrics.IncSuppressed(string(candidate.Type))
		e.logger.Debug("healing suppressed by cooldown",
			slog.String("issue_type", string(candidate.Type)),
			slog.String("severity", string(candidate.Severity)))
		return models.HealingEvent{}, false
	}

	// Mark in flight before any suspension point so a slow store call
	// cannot let a concurrent tick double-fire the same pair.
	key := cooldownKey{issueType: candidate.Type, severity: candidate.Severity}
	e.mu.Lock()
	if _, busy := e.inflight[key]; busy {
		e.mu.Unlock()
		return models.HealingEvent{}, false
	}
	e.inflight[key] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
	}()

	start := e.now()
	e.cooldowns.RecordFire(candidate.Type, candidate.Severity, start)

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.OverallBudget)
	defer cancel()

	event := e.run(runCtx, candidate, defaults, start)

	e.stats.RecordOutcome(event.ActionsTaken, event.Success)
	outcome := metrics.OutcomeSuccess
	if !event.Success {
		outcome = metrics.OutcomeFailure
	}
	metrics.ObserveHealing(event.Duration, outcome)

	if e.recency != nil {
		e.recency.Add(event)
	}
	e.remember(event)

	if e.knowledge != nil {
		if err := e.knowledge.Store(ctx, event); err != nil {
			// The remediation already happened; a lost learning write is
			// logged, not failed retroactively.
			e.logger.Warn("healing event store failed", slog.Any("error", err))
		}
	}

	e.logger.Info("healing completed",
		slog.String("event_id", event.EventID),
		slog.String("issue_type", string(event.IssueType)),
		slog.Bool("success", event.Success),
		slog.Int("actions", len(event.ActionsTaken)))
	return event, true
}

// Plan reports the action order a healing for the candidate would use,
// without executing anything, recording an event, or consuming a cooldown.
func (e *Executor) Plan(ctx context.Context, candidate models.IssueCandidate) (models.HealingPlan, error) {
	if candidate.Type == "" || candidate.Context == nil {
		return models.HealingPlan{}, fmt.Errorf("malformed issue candidate")
	}
	defaults := e.catalogue.ForIssue(candidate.Type)
	if len(defaults) == 0 {
		return models.HealingPlan{}, fmt.Errorf("no strategy registered for issue type %s", candidate.Type)
	}

	signature := similarity.Signature(candidate.Type, candidate.Context)
	ordered := Prioritize(defaults, e.similarHistory(ctx, signature))

	actions := make([]string, 0, len(ordered))
	for _, action := range ordered {
		actions = append(actions, action.Name())
	}
	return models.HealingPlan{
		IssueType:  candidate.Type,
		Severity:   candidate.Severity,
		Actions:    actions,
		Suppressed: !e.cooldowns.ShouldFire(candidate.Type, candidate.Severity),
	}, nil
}

// run drives Diagnosed -> Executing -> Verifying -> Completed and always
// produces the event, even when an action panics or the budget expires.
func (e *Executor) run(ctx context.Context, candidate models.IssueCandidate, defaults []Action, start time.Time) models.HealingEvent {
	signature := similarity.Signature(candidate.Type, candidate.Context)
	event := models.HealingEvent{
		EventID:          uuid.NewString(),
		IssueType:        candidate.Type,
		Severity:         candidate.Severity,
		ContextSignature: signature,
		ContextHash:      similarity.Hash(signature),
		ActionsTaken:     []string{},
		Timestamp:        start,
	}

	// Diagnosed: enrich with similar incidents. Collaborator failures
	// degrade to "no history" so defaults still run.
	ordered := Prioritize(defaults, e.similarHistory(ctx, signature))

	baseline, baselineKnown := candidate.ContextFloat("current_value")
	threshold, thresholdKnown := candidate.ContextFloat("threshold")

	var (
		actionErr error
		improved  bool
	)

	// Executing: strictly sequential; later actions may depend on earlier
	// ones having taken effect.
	for _, action := range ordered {
		if ctx.Err() != nil {
			actionErr = fmt.Errorf("healing budget exhausted before %s", action.Name())
			break
		}

		event.ActionsTaken = append(event.ActionsTaken, action.Name())
		if err := e.executeAction(ctx, action, candidate); err != nil {
			actionErr = fmt.Errorf("action %s: %w", action.Name(), err)
			break
		}

		if baselineKnown && baseline > 0 {
			if reading, ok := e.currentReading(ctx, candidate.Type); ok {
				if (baseline-reading)/baseline >= e.cfg.ImprovementMargin {
					improved = true
					break
				}
			}
		}
	}

	// Verifying: the caller-supplied check, when present, decides
	// independently of the metric heuristic.
	success := e.judgeOutcome(ctx, candidate, actionErr, improved, thresholdKnown, threshold)

	event.Success = success
	event.Duration = e.now().Sub(start)
	if actionErr != nil {
		event.ErrorMessage = actionErr.Error()
	}
	if e.sampler != nil {
		event.SystemMetrics = e.sampler.Sample(ctx)
	}
	if candidate.Preventive() {
		event.Metadata = map[string]string{"preventive": "true"}
	}
	return event
}

// executeAction runs one action under the per-action timeout, converting a
// panic into a regular action failure.
func (e *Executor) executeAction(ctx context.Context, action Action, candidate models.IssueCandidate) error {
	actionCtx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- action.Execute(actionCtx, HealContext{Candidate: candidate, Hooks: e.hooks})
	}()

	select {
	case err := <-done:
		return err
	case <-actionCtx.Done():
		return fmt.Errorf("timed out after %s", e.cfg.ActionTimeout)
	}
}

func (e *Executor) judgeOutcome(ctx context.Context, candidate models.IssueCandidate, actionErr error, improved, thresholdKnown bool, threshold float64) bool {
	if actionErr != nil {
		return false
	}

	if e.verifier != nil {
		ok, err := e.verifier(ctx)
		if err != nil {
			e.logger.Warn("verification check failed", slog.Any("error", err))
			return false
		}
		return ok
	}

	if improved {
		return true
	}
	if thresholdKnown {
		if reading, ok := e.currentReading(ctx, candidate.Type); ok {
			return reading <= threshold
		}
	}
	// Nothing measurable: completing the sequence counts as success.
	return true
}

// similarHistory consults the warm recency cache first and falls back to
// the knowledge store; both failing leaves the default ordering in place.
func (e *Executor) similarHistory(ctx context.Context, signature string) []models.HealingEvent {
	var scored []knowledge.ScoredEvent
	if e.recency != nil {
		scored = e.recency.Similar(e.sim, signature, e.cfg.SimilarityThreshold, e.cfg.MaxSimilar)
	}
	if len(scored) == 0 && e.knowledge != nil {
		fetched, err := e.knowledge.FindSimilarIncidents(ctx, signature)
		if err != nil {
			e.logger.Warn("similar incident lookup failed", slog.Any("error", err))
		} else {
			scored = fetched
		}
	}
	events := make([]models.HealingEvent, 0, len(scored))
	for _, s := range scored {
		events = append(events, s.Event)
	}
	return events
}

// currentReading re-derives the check reading for an issue type from a
// fresh lightweight pull. Lower is better for every reading.
func (e *Executor) currentReading(ctx context.Context, issueType models.IssueType) (float64, bool) {
	if e.source == nil {
		return 0, false
	}
	snapshot, err := e.source.Snapshot(ctx)
	if err != nil {
		return 0, false
	}

	switch issueType {
	case models.IssueHighErrorRate, models.IssueDegradation, models.IssueConfigDependency:
		requests := snapshot.Counter("requests_total")
		if requests <= 0 {
			return 0, false
		}
		return snapshot.Counter("request_errors_total") / requests, true
	case models.IssueSlowResponse, models.IssueBackpressure:
		stats, ok := snapshot.Histogram("http_request_duration_ms")
		if !ok {
			return 0, false
		}
		return stats.P95, true
	case models.IssueMemoryPressure, models.IssueResourceHotspot:
		return snapshot.Gauge("memory_usage_ratio"), true
	case models.IssueAgentFailures:
		executions := snapshot.Counter("agent_executions_total")
		if executions <= 0 {
			return 0, false
		}
		return snapshot.Counter("agent_failures_total") / executions, true
	case models.IssueSlowDatabase:
		stats, ok := snapshot.Histogram("db_query_duration_ms")
		if !ok {
			return 0, false
		}
		return stats.P95, true
	case models.IssueWebsocketBacklog:
		stats, ok := snapshot.Histogram("ws_message_duration_ms")
		if !ok {
			return 0, false
		}
		return stats.P95, true
	default:
		return 0, false
	}
}

func (e *Executor) remember(event models.HealingEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = append(e.recent, event)
	if len(e.recent) > e.cfg.RecentEvents {
		e.recent = e.recent[len(e.recent)-e.cfg.RecentEvents:]
	}
}

// RecentEvents returns up to n most recent completed events, newest first.
func (e *Executor) RecentEvents(n int) []models.HealingEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n <= 0 || n > len(e.recent) {
		n = len(e.recent)
	}
	out := make([]models.HealingEvent, 0, n)
	for i := len(e.recent) - 1; i >= len(e.recent)-n; i-- {
		out = append(out, e.recent[i])
	}
	return out
}
