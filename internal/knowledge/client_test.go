package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/models"
	"github.com/sentinelstack/sentinel-heal/internal/similarity"
)

type fakeStore struct {
	events    []models.HealingEvent
	stored    []models.HealingEvent
	queryErr  error
	storeErr  error
	lastLimit int
}

func (f *fakeStore) StoreEvent(_ context.Context, event models.HealingEvent) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored = append(f.stored, event)
	return nil
}

func (f *fakeStore) QuerySimilar(_ context.Context, _ string, limit int) ([]models.HealingEvent, error) {
	f.lastLimit = limit
	return f.events, f.queryErr
}

func (f *fakeStore) QuerySuccessful(context.Context, models.IssueType) ([]models.HealingEvent, error) {
	successful := make([]models.HealingEvent, 0)
	for _, e := range f.events {
		if e.Success {
			successful = append(successful, e)
		}
	}
	return successful, f.queryErr
}

func (f *fakeStore) QueryPrecedingPatterns(context.Context, models.IssueType) ([]models.PrecedingPattern, error) {
	return nil, f.queryErr
}

func (f *fakeStore) QueryRecent(context.Context, time.Duration) ([]models.HealingEvent, error) {
	return f.events, f.queryErr
}

func testSignature(value float64) string {
	return similarity.Signature(models.IssueHighErrorRate, map[string]any{
		"current_value": value,
		"threshold":     0.15,
	})
}

func eventWithSignature(id string, sig string, actions []string, success bool) models.HealingEvent {
	return models.HealingEvent{
		EventID:          id,
		IssueType:        models.IssueHighErrorRate,
		ContextSignature: sig,
		ContextHash:      similarity.Hash(sig),
		ActionsTaken:     actions,
		Success:          success,
		Timestamp:        time.Now(),
	}
}

func newTestClient(store Store) *Client {
	return NewClient(nil, store, similarity.NewEngine(similarity.DefaultWeights(), 0), ClientConfig{})
}

func TestFindSimilarIncidentsFiltersAndSorts(t *testing.T) {
	target := testSignature(0.25)
	store := &fakeStore{events: []models.HealingEvent{
		eventWithSignature("exact", target, nil, true),
		eventWithSignature("near", testSignature(0.26), nil, true),
		eventWithSignature("far", similarity.Signature(models.IssueWebsocketBacklog, map[string]any{"p95_ms": 1400.0}), nil, true),
	}}
	c := newTestClient(store)

	scored, err := c.FindSimilarIncidents(context.Background(), target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastLimit != 20 {
		t.Fatalf("expected default fetch window of 20, got %d", store.lastLimit)
	}
	if len(scored) == 0 {
		t.Fatalf("expected matches above the threshold")
	}
	if scored[0].Event.EventID != "exact" || scored[0].Score != 1 {
		t.Fatalf("expected the exact match first, got %+v", scored[0])
	}
	for i := 1; i < len(scored); i++ {
		if scored[i].Score > scored[i-1].Score {
			t.Fatalf("results not sorted by descending score")
		}
	}
	for _, s := range scored {
		if s.Event.EventID == "far" {
			t.Fatalf("dissimilar event must be filtered out")
		}
		if s.Score < 0.75 {
			t.Fatalf("score below threshold leaked through: %f", s.Score)
		}
	}
}

func TestFindSimilarIncidentsCapsResults(t *testing.T) {
	target := testSignature(0.25)
	store := &fakeStore{}
	for i := 0; i < 10; i++ {
		store.events = append(store.events, eventWithSignature("dup", target, nil, true))
	}
	c := newTestClient(store)

	scored, err := c.FindSimilarIncidents(context.Background(), target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scored) > 5 {
		t.Fatalf("expected at most 5 results, got %d", len(scored))
	}
}

func TestFindSimilarIncidentsStoreFailure(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("weaviate down")}
	c := newTestClient(store)

	if _, err := c.FindSimilarIncidents(context.Background(), testSignature(0.25)); err == nil {
		t.Fatalf("expected the store error to propagate")
	}
}

func TestNilStoreDegradesToEmpty(t *testing.T) {
	c := newTestClient(nil)

	scored, err := c.FindSimilarIncidents(context.Background(), testSignature(0.25))
	if err != nil || scored != nil {
		t.Fatalf("nil store must return nothing, got %v / %v", scored, err)
	}
	if err := c.Store(context.Background(), models.HealingEvent{}); err != nil {
		t.Fatalf("nil store must absorb writes, got %v", err)
	}
}

func TestStorePropagatesError(t *testing.T) {
	store := &fakeStore{storeErr: errors.New("write refused")}
	c := newTestClient(store)
	if err := c.Store(context.Background(), models.HealingEvent{EventID: "e"}); err == nil {
		t.Fatalf("expected the write error so the caller can log it")
	}
}

func TestAggregatePatterns(t *testing.T) {
	events := []models.HealingEvent{
		{ActionsTaken: []string{"rollback_config"}, Success: true},
		{ActionsTaken: []string{"rollback_config"}, Success: true},
		{ActionsTaken: []string{"rollback_config", "restart_unhealthy"}, Success: false},
		{ActionsTaken: []string{"restart_unhealthy"}, Success: true},
	}

	patterns := AggregatePatterns(models.IssueHighErrorRate, events)
	if len(patterns) != 2 {
		t.Fatalf("expected two patterns, got %d", len(patterns))
	}

	// rollback: 2 successes of 3 appearances; restart: 1 of 2.
	if patterns[0].Action != "rollback_config" {
		t.Fatalf("expected rollback_config ranked first, got %s", patterns[0].Action)
	}
	if patterns[0].SuccessRate != 2.0/3.0 || patterns[0].Occurrences != 3 {
		t.Fatalf("unexpected rollback aggregate: %+v", patterns[0])
	}
	if patterns[1].SuccessRate != 0.5 || patterns[1].Occurrences != 2 {
		t.Fatalf("unexpected restart aggregate: %+v", patterns[1])
	}
}

func TestAggregatePatternsEmptyHistory(t *testing.T) {
	if patterns := AggregatePatterns(models.IssueHighErrorRate, nil); len(patterns) != 0 {
		t.Fatalf("expected no patterns for empty history, got %d", len(patterns))
	}
}
