package healing

import (
	"context"
	"sort"
	"sync"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

// Hooks are the caller-supplied integrations actions operate through. A nil
// hook means the action runs in simulation: it reports success without
// touching anything, which keeps the loop exercisable in development.
type Hooks struct {
	RestartService   func(ctx context.Context) error
	RollbackConfig   func(ctx context.Context) error
	ScaleService     func(ctx context.Context, delta int) error
	RebalanceLoad    func(ctx context.Context) error
	ThrottleTraffic  func(ctx context.Context, factor float64) error
	PurgeQueue       func(ctx context.Context) error
	RecycleContainer func(ctx context.Context) error
	AddWorkers       func(ctx context.Context, delta int) error
}

// HealContext is handed to each action during execution.
type HealContext struct {
	Candidate models.IssueCandidate
	Hooks     Hooks
}

// Action is a single remediation step. Implementations must be safe to run
// repeatedly; later actions in a sequence may depend on earlier ones.
type Action interface {
	Name() string
	Info() models.StrategyInfo
	Execute(ctx context.Context, hc HealContext) error
}

// Action identifiers.
const (
	ActionRestartUnhealthy = "restart_unhealthy"
	ActionRollbackConfig   = "rollback_config"
	ActionScaleService     = "scale_service"
	ActionRebalanceLoad    = "rebalance_load"
	ActionThrottleTraffic  = "throttle_traffic"
	ActionPurgeStuck       = "purge_stuck"
	ActionRecycleContainer = "recycle_container"
	ActionIncreaseWorkers  = "increase_workers"
)

type restartUnhealthy struct{}

func (restartUnhealthy) Name() string { return ActionRestartUnhealthy }
func (restartUnhealthy) Info() models.StrategyInfo {
	return models.StrategyInfo{
		Name:        ActionRestartUnhealthy,
		Description: "Restart unhealthy containers/services",
		SafetyLevel: "high",
		Cost:        0.2,
	}
}
func (restartUnhealthy) Execute(ctx context.Context, hc HealContext) error {
	if hc.Hooks.RestartService == nil {
		return nil
	}
	return hc.Hooks.RestartService(ctx)
}

type rollbackConfig struct{}

func (rollbackConfig) Name() string { return ActionRollbackConfig }
func (rollbackConfig) Info() models.StrategyInfo {
	return models.StrategyInfo{
		Name:        ActionRollbackConfig,
		Description: "Rollback to last known good configuration",
		SafetyLevel: "medium",
		Cost:        0.5,
	}
}
func (rollbackConfig) Execute(ctx context.Context, hc HealContext) error {
	if hc.Hooks.RollbackConfig == nil {
		return nil
	}
	return hc.Hooks.RollbackConfig(ctx)
}

type scaleService struct{}

func (scaleService) Name() string { return ActionScaleService }
func (scaleService) Info() models.StrategyInfo {
	return models.StrategyInfo{
		Name:        ActionScaleService,
		Description: "Increase service replicas to handle load",
		SafetyLevel: "medium",
		Cost:        0.4,
	}
}
func (scaleService) Execute(ctx context.Context, hc HealContext) error {
	if hc.Hooks.ScaleService == nil {
		return nil
	}
	return hc.Hooks.ScaleService(ctx, 1)
}

type rebalanceLoad struct{}

func (rebalanceLoad) Name() string { return ActionRebalanceLoad }
func (rebalanceLoad) Info() models.StrategyInfo {
	return models.StrategyInfo{
		Name:        ActionRebalanceLoad,
		Description: "Rebalance work across nodes",
		SafetyLevel: "high",
		Cost:        0.3,
	}
}
func (rebalanceLoad) Execute(ctx context.Context, hc HealContext) error {
	if hc.Hooks.RebalanceLoad == nil {
		return nil
	}
	return hc.Hooks.RebalanceLoad(ctx)
}

type throttleTraffic struct{}

func (throttleTraffic) Name() string { return ActionThrottleTraffic }
func (throttleTraffic) Info() models.StrategyInfo {
	return models.StrategyInfo{
		Name:        ActionThrottleTraffic,
		Description: "Apply rate limits to reduce pressure",
		SafetyLevel: "low",
		Cost:        0.1,
	}
}
func (throttleTraffic) Execute(ctx context.Context, hc HealContext) error {
	if hc.Hooks.ThrottleTraffic == nil {
		return nil
	}
	return hc.Hooks.ThrottleTraffic(ctx, 0.8)
}

type purgeStuck struct{}

func (purgeStuck) Name() string { return ActionPurgeStuck }
func (purgeStuck) Info() models.StrategyInfo {
	return models.StrategyInfo{
		Name:        ActionPurgeStuck,
		Description: "Remove stuck items from queues",
		SafetyLevel: "medium",
		Cost:        0.2,
	}
}
func (purgeStuck) Execute(ctx context.Context, hc HealContext) error {
	if hc.Hooks.PurgeQueue == nil {
		return nil
	}
	return hc.Hooks.PurgeQueue(ctx)
}

type recycleContainer struct{}

func (recycleContainer) Name() string { return ActionRecycleContainer }
func (recycleContainer) Info() models.StrategyInfo {
	return models.StrategyInfo{
		Name:        ActionRecycleContainer,
		Description: "Stop and start a container to clear state",
		SafetyLevel: "medium",
		Cost:        0.3,
	}
}
func (recycleContainer) Execute(ctx context.Context, hc HealContext) error {
	if hc.Hooks.RecycleContainer == nil {
		return nil
	}
	return hc.Hooks.RecycleContainer(ctx)
}

type increaseWorkers struct{}

func (increaseWorkers) Name() string { return ActionIncreaseWorkers }
func (increaseWorkers) Info() models.StrategyInfo {
	return models.StrategyInfo{
		Name:        ActionIncreaseWorkers,
		Description: "Add workers to drain queued work",
		SafetyLevel: "medium",
		Cost:        0.3,
	}
}
func (increaseWorkers) Execute(ctx context.Context, hc HealContext) error {
	if hc.Hooks.AddWorkers == nil {
		return nil
	}
	return hc.Hooks.AddWorkers(ctx, 1)
}

// Catalogue binds every known issue type to its default ordered action
// list. Unknown issue types have no strategy and never reach execution.
type Catalogue struct {
	defaults map[models.IssueType][]Action
}

// NewCatalogue builds the built-in strategy catalogue.
func NewCatalogue() *Catalogue {
	var (
		restart  = restartUnhealthy{}
		rollback = rollbackConfig{}
		scale    = scaleService{}
		balance  = rebalanceLoad{}
		throttle = throttleTraffic{}
		purge    = purgeStuck{}
		recycle  = recycleContainer{}
		workers  = increaseWorkers{}
	)
	return &Catalogue{
		defaults: map[models.IssueType][]Action{
			models.IssueHighErrorRate:    {throttle, restart, rollback},
			models.IssueSlowResponse:     {scale, balance, throttle},
			models.IssueMemoryPressure:   {restart, recycle},
			models.IssueAgentFailures:    {restart, rollback, scale},
			models.IssueSlowDatabase:     {balance, throttle, restart},
			models.IssueWebsocketBacklog: {workers, purge, balance},
			models.IssueDegradation:      {scale, restart, throttle},
			models.IssueBackpressure:     {workers, balance, purge},
			models.IssueResourceHotspot:  {scale, restart},
			models.IssueConfigDependency: {rollback, restart},
		},
	}
}

// ForIssue returns the default ordered action list for the issue type, or
// nil when no strategy is registered.
func (c *Catalogue) ForIssue(issueType models.IssueType) []Action {
	actions, ok := c.defaults[issueType]
	if !ok {
		return nil
	}
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// Infos describes every distinct action in the catalogue, sorted by name.
func (c *Catalogue) Infos() []models.StrategyInfo {
	seen := make(map[string]models.StrategyInfo)
	for _, actions := range c.defaults {
		for _, action := range actions {
			seen[action.Name()] = action.Info()
		}
	}
	infos := make([]models.StrategyInfo, 0, len(seen))
	for _, info := range seen {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Prioritize reorders defaultActions by the success rate observed in
// similar incidents: successes counted only from events marked successful,
// totals from every appearance. The sort is stable so unobserved actions
// keep their hand-authored relative order, and an empty history returns the
// defaults unchanged.
func Prioritize(defaultActions []Action, similarEvents []models.HealingEvent) []Action {
	if len(defaultActions) == 0 || len(similarEvents) == 0 {
		return defaultActions
	}

	type tally struct {
		successes int
		total     int
	}
	tallies := make(map[string]*tally)
	for _, event := range similarEvents {
		for _, name := range event.ActionsTaken {
			t, ok := tallies[name]
			if !ok {
				t = &tally{}
				tallies[name] = t
			}
			t.total++
			if event.Success {
				t.successes++
			}
		}
	}

	rate := func(action Action) float64 {
		t, ok := tallies[action.Name()]
		if !ok || t.total == 0 {
			return 0
		}
		return float64(t.successes) / float64(t.total)
	}

	out := make([]Action, len(defaultActions))
	copy(out, defaultActions)
	sort.SliceStable(out, func(i, j int) bool {
		return rate(out[i]) > rate(out[j])
	})
	return out
}

// StrategyStats tallies observed outcomes per action so the selector's
// learning is visible in status output.
type StrategyStats struct {
	mu      sync.Mutex
	records map[string]*models.LearningStat
}

// NewStrategyStats constructs an empty tally.
func NewStrategyStats() *StrategyStats {
	return &StrategyStats{records: make(map[string]*models.LearningStat)}
}

// RecordOutcome counts one attempt for each executed action.
func (s *StrategyStats) RecordOutcome(actions []string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range actions {
		rec, ok := s.records[name]
		if !ok {
			rec = &models.LearningStat{Strategy: name}
			s.records[name] = rec
		}
		rec.Attempts++
		if success {
			rec.Successes++
		}
	}
}

// Snapshot returns the current tallies sorted by strategy name.
func (s *StrategyStats) Snapshot() []models.LearningStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make([]models.LearningStat, 0, len(s.records))
	for _, rec := range s.records {
		stats = append(stats, *rec)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Strategy < stats[j].Strategy })
	return stats
}
