package healing

import (
	"sort"
	"sync"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

// CooldownWindows maps severities to suppression windows. More severe
// issues re-fire sooner.
type CooldownWindows struct {
	Critical time.Duration
	High     time.Duration
	Warning  time.Duration
	Medium   time.Duration
	Default  time.Duration
}

// DefaultCooldownWindows returns the standard severity-scaled windows.
func DefaultCooldownWindows() CooldownWindows {
	return CooldownWindows{
		Critical: 60 * time.Second,
		High:     300 * time.Second,
		Warning:  600 * time.Second,
		Medium:   900 * time.Second,
		Default:  1800 * time.Second,
	}
}

func (w CooldownWindows) window(severity models.Severity) time.Duration {
	switch severity {
	case models.SeverityCritical:
		return w.Critical
	case models.SeverityHigh:
		return w.High
	case models.SeverityWarning:
		return w.Warning
	case models.SeverityMedium:
		return w.Medium
	default:
		return w.Default
	}
}

type cooldownKey struct {
	issueType models.IssueType
	severity  models.Severity
}

// CooldownManager suppresses repeated healing for the same (issue type,
// severity) pair. Suppression is strictly now-last < window: firing is
// allowed once the window has exactly elapsed.
type CooldownManager struct {
	mu      sync.Mutex
	windows CooldownWindows
	last    map[cooldownKey]time.Time
	now     func() time.Time
}

// NewCooldownManager constructs a manager; now may be nil for wall clock.
func NewCooldownManager(windows CooldownWindows, now func() time.Time) *CooldownManager {
	if windows == (CooldownWindows{}) {
		windows = DefaultCooldownWindows()
	}
	if now == nil {
		now = time.Now
	}
	return &CooldownManager{
		windows: windows,
		last:    make(map[cooldownKey]time.Time),
		now:     now,
	}
}

// ShouldFire reports whether healing for the pair is currently allowed.
func (m *CooldownManager) ShouldFire(issueType models.IssueType, severity models.Severity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.last[cooldownKey{issueType: issueType, severity: severity}]
	if !ok {
		return true
	}
	return m.now().Sub(last) >= m.windows.window(severity)
}

// RecordFire stamps the pair's cooldown clock.
func (m *CooldownManager) RecordFire(issueType models.IssueType, severity models.Severity, at time.Time) {
	if at.IsZero() {
		at = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[cooldownKey{issueType: issueType, severity: severity}] = at
}

// EvictExpired drops entries whose longest possible window has elapsed.
// Eviction is purely housekeeping; correctness never depends on it.
func (m *CooldownManager) EvictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	evicted := 0
	for key, last := range m.last {
		if now.Sub(last) >= m.windows.window(key.severity) {
			delete(m.last, key)
			evicted++
		}
	}
	return evicted
}

// Active returns the suppression windows still in effect, for status
// reporting. Expired entries are skipped but not evicted; they are simply
// overwritten on the next fire.
func (m *CooldownManager) Active() []models.CooldownStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	statuses := make([]models.CooldownStatus, 0, len(m.last))
	for key, last := range m.last {
		expires := last.Add(m.windows.window(key.severity))
		if !expires.After(now) {
			continue
		}
		statuses = append(statuses, models.CooldownStatus{
			IssueType:   key.issueType,
			Severity:    key.severity,
			LastFiredAt: last,
			ExpiresAt:   expires,
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].IssueType != statuses[j].IssueType {
			return statuses[i].IssueType < statuses[j].IssueType
		}
		return statuses[i].Severity < statuses[j].Severity
	})
	return statuses
}
