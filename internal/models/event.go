package models

import "time"

// HealingEvent is the immutable record of one remediation attempt. Exactly
// one event is produced per triggered healing, success or not.
type HealingEvent struct {
	EventID          string
	IssueType        IssueType
	Severity         Severity
	ContextSignature string
	ContextHash      string
	ActionsTaken     []string
	Success          bool
	Duration         time.Duration
	ErrorMessage     string
	SystemMetrics    SystemMetrics
	Timestamp        time.Time
	Metadata         map[string]string
}

// HealingPlan describes what a healing run would do, produced by dry-run
// triggers. Nothing in a plan is executed or recorded.
type HealingPlan struct {
	IssueType  IssueType
	Severity   Severity
	Actions    []string
	Suppressed bool
}

// HealingPattern is the per-action success aggregate for one issue type,
// recomputed from event history on query.
type HealingPattern struct {
	IssueType   IssueType
	Action      string
	SuccessRate float64
	Occurrences int
}

// PrecedingPattern describes a leading indicator historically observed
// shortly before an issue type occurred.
type PrecedingPattern struct {
	IssueType   IssueType
	Metric      string
	Direction   string
	TypicalLead time.Duration
	Confidence  float64
}

// CooldownStatus is a read-only view of one active suppression window.
type CooldownStatus struct {
	IssueType   IssueType
	Severity    Severity
	LastFiredAt time.Time
	ExpiresAt   time.Time
}

// StrategyInfo describes one remediation action available to the executor.
type StrategyInfo struct {
	Name        string
	Description string
	SafetyLevel string
	Cost        float64
}

// LearningStat tallies observed outcomes for one strategy.
type LearningStat struct {
	Strategy  string
	Successes int
	Attempts  int
}

// EngineStatus is the operational snapshot returned to callers.
type EngineStatus struct {
	RecentEvents        []HealingEvent
	ActiveCooldowns     []CooldownStatus
	Thresholds          map[string]float64
	AvailableStrategies []StrategyInfo
	KnowledgeCacheSize  int
	LearningStats       []LearningStat
	HealingLatencyP95   time.Duration
}
