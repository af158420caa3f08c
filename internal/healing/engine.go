package healing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/health"
	"github.com/sentinelstack/sentinel-heal/internal/knowledge"
	"github.com/sentinelstack/sentinel-heal/internal/metrics"
	"github.com/sentinelstack/sentinel-heal/internal/models"
	"github.com/sentinelstack/sentinel-heal/internal/utils"
)

// EngineConfig sets the cadence of the background loops.
type EngineConfig struct {
	HealthInterval     time.Duration
	PredictiveInterval time.Duration
	SyncInterval       time.Duration
	CleanupInterval    time.Duration
}

// DefaultEngineConfig returns production cadences.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HealthInterval:     30 * time.Second,
		PredictiveInterval: 5 * time.Minute,
		SyncInterval:       10 * time.Minute,
		CleanupInterval:    time.Hour,
	}
}

// Engine drives the control loop: periodic health evaluation, predictive
// analysis, knowledge sync, and cooldown cleanup, funnelling every detected
// candidate through the executor.
type Engine struct {
	logger    *slog.Logger
	evaluator *health.Evaluator
	analyzer  *Analyzer
	executor  *Executor
	syncer    *knowledge.Syncer
	recency   *knowledge.RecencyCache
	catalogue *Catalogue
	cooldowns *CooldownManager
	stats     *StrategyStats
	latency   *utils.LatencyTracker
	cfg       EngineConfig

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// NewEngine wires an Engine from its collaborators. The catalogue, cooldown
// manager, and stats must be the same instances handed to the executor so
// status reporting reflects live state.
func NewEngine(
	logger *slog.Logger,
	evaluator *health.Evaluator,
	analyzer *Analyzer,
	executor *Executor,
	syncer *knowledge.Syncer,
	recency *knowledge.RecencyCache,
	catalogue *Catalogue,
	cooldowns *CooldownManager,
	stats *StrategyStats,
	cfg EngineConfig,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 30 * time.Second
	}
	if cfg.PredictiveInterval <= 0 {
		cfg.PredictiveInterval = 5 * time.Minute
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 10 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	return &Engine{
		logger:    logger,
		evaluator: evaluator,
		analyzer:  analyzer,
		executor:  executor,
		syncer:    syncer,
		recency:   recency,
		catalogue: catalogue,
		cooldowns: cooldowns,
		stats:     stats,
		latency:   utils.NewLatencyTracker(512),
		cfg:       cfg,
	}
}

// Start launches the background loops. It returns immediately; Stop waits
// for them to drain.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go e.loop(runCtx, e.cfg.HealthInterval, "health", e.healthTick)

	if e.analyzer != nil {
		e.wg.Add(1)
		go e.loop(runCtx, e.cfg.PredictiveInterval, "predictive", e.predictiveTick)
	}
	if e.syncer != nil {
		e.wg.Add(1)
		go e.loop(runCtx, e.cfg.SyncInterval, "sync", e.syncTick)
	}

	e.wg.Add(1)
	go e.loop(runCtx, e.cfg.CleanupInterval, "cleanup", e.cleanupTick)

	e.logger.Info("healing engine started",
		slog.Duration("health_interval", e.cfg.HealthInterval),
		slog.Duration("predictive_interval", e.cfg.PredictiveInterval))
}

// Stop cancels the loops and waits for in-flight ticks to finish.
func (e *Engine) Stop() {
	e.once.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.logger.Info("healing engine stopped")
	})
}

func (e *Engine) loop(ctx context.Context, interval time.Duration, name string, tick func(context.Context)) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.guarded(ctx, name, tick)
		}
	}
}

// guarded runs one tick, converting a panic into a logged error so a single
// bad tick never kills the loop.
func (e *Engine) guarded(ctx context.Context, name string, tick func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tick panicked", slog.String("loop", name), slog.Any("panic", r))
		}
	}()
	tick(ctx)
}

func (e *Engine) healthTick(ctx context.Context) {
	if e.evaluator == nil {
		return
	}
	for _, candidate := range e.evaluator.Evaluate(ctx) {
		e.dispatch(ctx, candidate)
	}
}

func (e *Engine) predictiveTick(ctx context.Context) {
	for _, candidate := range e.analyzer.Evaluate(ctx) {
		e.dispatch(ctx, candidate)
	}
}

// dispatch runs one candidate's healing on its own goroutine so a slow run
// for one issue type never holds up detection or healing of the others. The
// executor's in-flight marking keeps a pair from double-firing while a run
// for it is still underway.
func (e *Engine) dispatch(ctx context.Context, candidate models.IssueCandidate) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.guarded(ctx, "heal", func(ctx context.Context) {
			e.handle(ctx, candidate)
		})
	}()
}

func (e *Engine) syncTick(ctx context.Context) {
	if err := e.syncer.RunOnce(ctx); err != nil {
		e.logger.Warn("knowledge sync failed", slog.Any("error", err))
	}
}

func (e *Engine) cleanupTick(context.Context) {
	if evicted := e.cooldowns.EvictExpired(); evicted > 0 {
		e.logger.Debug("evicted expired cooldowns", slog.Int("count", evicted))
	}
}

func (e *Engine) handle(ctx context.Context, candidate models.IssueCandidate) {
	metrics.IncCandidate(string(candidate.Type))
	event, attempted := e.executor.Heal(ctx, candidate)
	if attempted {
		e.latency.Observe(event.Duration)
	}
}

// TriggerHealing requests a healing run for an externally reported issue.
// It returns immediately; the run happens on its own goroutine and all
// failures are absorbed into the recorded event.
func (e *Engine) TriggerHealing(issueType, severity string, issueContext map[string]any) {
	if issueContext == nil {
		issueContext = map[string]any{}
	}
	candidate := models.IssueCandidate{
		Type:     models.IssueType(issueType),
		Severity: models.ParseSeverity(severity),
		Context:  issueContext,
	}
	go e.guarded(context.Background(), "trigger", func(ctx context.Context) {
		e.handle(ctx, candidate)
	})
}

// PlanHealing reports what a trigger for the issue would do without
// running it.
func (e *Engine) PlanHealing(ctx context.Context, issueType, severity string, issueContext map[string]any) (models.HealingPlan, error) {
	if issueContext == nil {
		issueContext = map[string]any{}
	}
	return e.executor.Plan(ctx, models.IssueCandidate{
		Type:     models.IssueType(issueType),
		Severity: models.ParseSeverity(severity),
		Context:  issueContext,
	})
}

// Status assembles the operational snapshot for the status endpoint.
func (e *Engine) Status() models.EngineStatus {
	status := models.EngineStatus{
		RecentEvents:        e.executor.RecentEvents(10),
		ActiveCooldowns:     e.cooldowns.Active(),
		AvailableStrategies: e.catalogue.Infos(),
		LearningStats:       e.stats.Snapshot(),
		HealingLatencyP95:   e.HealingLatencyP95(),
	}
	if e.evaluator != nil {
		status.Thresholds = e.evaluator.Thresholds().Map()
	}
	if e.recency != nil {
		status.KnowledgeCacheSize = e.recency.Size()
	}
	return status
}

// HealingLatencyP95 reports the observed p95 healing duration.
func (e *Engine) HealingLatencyP95() time.Duration {
	return e.latency.Percentile(95)
}
