package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/models"
	"github.com/sentinelstack/sentinel-heal/internal/patterns"
	"github.com/sentinelstack/sentinel-heal/internal/similarity"
)

func TestSyncerMergesIntoCache(t *testing.T) {
	store := &fakeStore{events: []models.HealingEvent{
		eventWithSignature("e1", testSignature(0.20), nil, true),
		eventWithSignature("e2", testSignature(0.30), nil, false),
	}}
	cache := NewRecencyCache(100)
	s := NewSyncer(nil, newTestClient(store), cache, nil, time.Hour)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.Size() != 2 {
		t.Fatalf("expected two cached events, got %d", cache.Size())
	}
}

func TestSyncerPropagatesStoreFailure(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("weaviate down")}
	cache := NewRecencyCache(100)
	s := NewSyncer(nil, newTestClient(store), cache, nil, time.Hour)

	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected the fetch error to surface for loop logging")
	}
	if cache.Size() != 0 {
		t.Fatalf("failed sync must leave the cache untouched")
	}
}

func TestSyncerRunsMiner(t *testing.T) {
	base := time.Now()
	var events []models.HealingEvent
	for i := 0; i < 3; i++ {
		offset := time.Duration(i) * time.Hour
		memory := eventWithSignature("", similarity.Signature(models.IssueMemoryPressure, map[string]any{"current_value": 0.9}), nil, true)
		memory.EventID = "m" + string(rune('0'+i))
		memory.IssueType = models.IssueMemoryPressure
		memory.Timestamp = base.Add(offset)
		spike := eventWithSignature("", testSignature(0.3), nil, true)
		spike.EventID = "s" + string(rune('0'+i))
		spike.Timestamp = base.Add(offset + 5*time.Minute)
		events = append(events, memory, spike)
	}
	store := &fakeStore{events: events}

	mined := 0
	sink := patterns.StoreFunc(func(_ context.Context, ps []models.PrecedingPattern) error {
		mined += len(ps)
		return nil
	})
	miner := patterns.NewMiner(nil, sink, 15*time.Minute, 2)
	s := NewSyncer(nil, newTestClient(store), NewRecencyCache(100), miner, time.Hour)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mined == 0 {
		t.Fatalf("expected the miner to produce and store patterns")
	}
}
