package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

type fakePatternStore struct {
	stored int
}

func (f *fakePatternStore) StorePatterns(ctx context.Context, patterns []models.PrecedingPattern) error {
	f.stored += len(patterns)
	return nil
}

func TestMinerMinesPrecedingPatterns(t *testing.T) {
	store := &fakePatternStore{}
	miner := NewMiner(nil, store, 15*time.Minute, 2)

	now := time.Now()
	var events []models.HealingEvent
	// Memory pressure repeatedly shows up a few minutes before the error
	// spike, so it should surface as a leading indicator.
	for i := 0; i < 3; i++ {
		base := now.Add(time.Duration(i) * time.Hour)
		events = append(events,
			models.HealingEvent{IssueType: models.IssueMemoryPressure, Timestamp: base},
			models.HealingEvent{IssueType: models.IssueHighErrorRate, Timestamp: base.Add(5 * time.Minute)},
		)
	}

	patterns, err := miner.Mine(context.Background(), events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) == 0 {
		t.Fatalf("expected patterns")
	}

	top := patterns[0]
	if top.IssueType != models.IssueHighErrorRate {
		t.Fatalf("expected high_error_rate target, got %s", top.IssueType)
	}
	if top.Metric != "memory_usage_ratio" {
		t.Fatalf("expected memory_usage_ratio indicator, got %s", top.Metric)
	}
	if top.TypicalLead != 5*time.Minute {
		t.Fatalf("expected 5m typical lead, got %s", top.TypicalLead)
	}
	if top.Confidence != 1 {
		t.Fatalf("expected confidence 1, got %f", top.Confidence)
	}
	if store.stored == 0 {
		t.Fatalf("expected patterns to be stored")
	}
}

func TestMinerIgnoresRarePairs(t *testing.T) {
	miner := NewMiner(nil, nil, 15*time.Minute, 3)

	now := time.Now()
	events := []models.HealingEvent{
		{IssueType: models.IssueMemoryPressure, Timestamp: now},
		{IssueType: models.IssueHighErrorRate, Timestamp: now.Add(5 * time.Minute)},
	}

	patterns, err := miner.Mine(context.Background(), events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns below the occurrence floor, got %d", len(patterns))
	}
}
