package models

// IssueType enumerates the degraded conditions the control loop understands.
// The set is closed so every type is bound to a concrete strategy list at
// compile time rather than through runtime string dispatch.
type IssueType string

const (
	IssueHighErrorRate    IssueType = "high_error_rate"
	IssueSlowResponse     IssueType = "slow_response"
	IssueMemoryPressure   IssueType = "memory_pressure"
	IssueAgentFailures    IssueType = "agent_failures"
	IssueSlowDatabase     IssueType = "slow_database"
	IssueWebsocketBacklog IssueType = "websocket_backlog"

	// Diagnosed combinations rather than single-metric breaches.
	IssueDegradation      IssueType = "degradation"
	IssueBackpressure     IssueType = "backpressure"
	IssueResourceHotspot  IssueType = "resource_hotspot"
	IssueConfigDependency IssueType = "configuration_or_dependency"
)

// KnownIssueTypes lists every issue type with a registered strategy.
func KnownIssueTypes() []IssueType {
	return []IssueType{
		IssueHighErrorRate,
		IssueSlowResponse,
		IssueMemoryPressure,
		IssueAgentFailures,
		IssueSlowDatabase,
		IssueWebsocketBacklog,
		IssueDegradation,
		IssueBackpressure,
		IssueResourceHotspot,
		IssueConfigDependency,
	}
}

// Severity captures impact levels. Ordering matters for cooldown windows:
// more severe issues re-fire sooner.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity maps free-form input onto a known severity, defaulting to low.
func ParseSeverity(value string) Severity {
	switch Severity(value) {
	case SeverityCritical, SeverityHigh, SeverityWarning, SeverityMedium, SeverityLow:
		return Severity(value)
	default:
		return SeverityLow
	}
}

// IssueCandidate is a provisional detection of a degraded condition. It is
// consumed once by the cooldown gate and, if it survives, by the executor.
type IssueCandidate struct {
	Type     IssueType
	Severity Severity
	Context  map[string]any
}

// Preventive reports whether the candidate was synthesized by the predictive
// analyzer rather than a crossed threshold.
func (c IssueCandidate) Preventive() bool {
	v, ok := c.Context["preventive"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// ContextFloat extracts a numeric context field, tolerating the numeric
// types that survive JSON round-trips.
func (c IssueCandidate) ContextFloat(key string) (float64, bool) {
	v, ok := c.Context[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
