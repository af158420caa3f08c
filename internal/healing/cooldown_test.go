package healing

import (
	"testing"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

func TestCooldownSuppressesWithinWindow(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	m := NewCooldownManager(DefaultCooldownWindows(), now)

	if !m.ShouldFire(models.IssueHighErrorRate, models.SeverityHigh) {
		t.Fatalf("first occurrence must fire")
	}
	m.RecordFire(models.IssueHighErrorRate, models.SeverityHigh, clock)

	// 100s into a 300s window: suppressed.
	clock = clock.Add(100 * time.Second)
	if m.ShouldFire(models.IssueHighErrorRate, models.SeverityHigh) {
		t.Fatalf("expected suppression 100s into a 300s window")
	}

	// 301s after the fire: allowed again.
	clock = clock.Add(201 * time.Second)
	if !m.ShouldFire(models.IssueHighErrorRate, models.SeverityHigh) {
		t.Fatalf("expected firing allowed 301s after the last fire")
	}
}

func TestCooldownAllowsAtExactBoundary(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	m := NewCooldownManager(DefaultCooldownWindows(), now)

	m.RecordFire(models.IssueMemoryPressure, models.SeverityCritical, clock)
	clock = clock.Add(60 * time.Second)
	if !m.ShouldFire(models.IssueMemoryPressure, models.SeverityCritical) {
		t.Fatalf("expected firing allowed at exact window elapse")
	}
}

func TestCooldownKeysByIssueAndSeverity(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewCooldownManager(DefaultCooldownWindows(), func() time.Time { return clock })

	m.RecordFire(models.IssueHighErrorRate, models.SeverityHigh, clock)

	if m.ShouldFire(models.IssueHighErrorRate, models.SeverityHigh) {
		t.Fatalf("same pair must be suppressed")
	}
	if !m.ShouldFire(models.IssueHighErrorRate, models.SeverityCritical) {
		t.Fatalf("same issue at a different severity must fire")
	}
	if !m.ShouldFire(models.IssueSlowResponse, models.SeverityHigh) {
		t.Fatalf("different issue at the same severity must fire")
	}
}

func TestCooldownUnknownSeverityUsesDefaultWindow(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewCooldownManager(DefaultCooldownWindows(), func() time.Time { return clock })

	m.RecordFire(models.IssueDegradation, models.SeverityLow, clock)

	clock = clock.Add(20 * time.Minute)
	if m.ShouldFire(models.IssueDegradation, models.SeverityLow) {
		t.Fatalf("low severity should use the 30m default window")
	}
	clock = clock.Add(10 * time.Minute)
	if !m.ShouldFire(models.IssueDegradation, models.SeverityLow) {
		t.Fatalf("expected firing after the default window elapsed")
	}
}

func TestEvictExpired(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewCooldownManager(DefaultCooldownWindows(), func() time.Time { return clock })

	m.RecordFire(models.IssueHighErrorRate, models.SeverityCritical, clock)
	m.RecordFire(models.IssueMemoryPressure, models.SeverityMedium, clock)

	clock = clock.Add(2 * time.Minute)
	if evicted := m.EvictExpired(); evicted != 1 {
		t.Fatalf("expected 1 eviction (critical at 60s), got %d", evicted)
	}
	if len(m.Active()) != 1 {
		t.Fatalf("expected one active cooldown remaining")
	}
}

func TestActiveReportsExpiry(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewCooldownManager(DefaultCooldownWindows(), func() time.Time { return clock })

	m.RecordFire(models.IssueSlowDatabase, models.SeverityWarning, clock)

	active := m.Active()
	if len(active) != 1 {
		t.Fatalf("expected one active cooldown, got %d", len(active))
	}
	if got := active[0].ExpiresAt.Sub(active[0].LastFiredAt); got != 10*time.Minute {
		t.Fatalf("expected 10m warning window, got %s", got)
	}
}
