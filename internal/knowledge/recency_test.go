package knowledge

import (
	"testing"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/models"
	"github.com/sentinelstack/sentinel-heal/internal/similarity"
)

func TestRecencyCacheOverwritesSameHash(t *testing.T) {
	c := NewRecencyCache(10)
	sig := testSignature(0.25)

	c.Add(eventWithSignature("first", sig, []string{"restart_unhealthy"}, false))
	c.Add(eventWithSignature("second", sig, []string{"rollback_config"}, true))

	if c.Size() != 1 {
		t.Fatalf("same hash must overwrite, size = %d", c.Size())
	}

	sim := similarity.NewEngine(similarity.DefaultWeights(), 0)
	scored := c.Similar(sim, sig, 0.75, 5)
	if len(scored) != 1 || scored[0].Event.EventID != "second" {
		t.Fatalf("expected the newer event, got %+v", scored)
	}
}

func TestRecencyCacheEvictsOldest(t *testing.T) {
	c := NewRecencyCache(3)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		sig := testSignature(0.10 + float64(i)/100)
		event := eventWithSignature("", sig, nil, true)
		event.EventID = string(rune('a' + i))
		event.Timestamp = base.Add(time.Duration(i) * time.Minute)
		c.Add(event)
	}

	if c.Size() != 3 {
		t.Fatalf("expected capacity 3, got %d", c.Size())
	}

	sim := similarity.NewEngine(similarity.DefaultWeights(), 0)
	oldest := testSignature(0.10)
	for _, s := range c.Similar(sim, oldest, 0.99, 0) {
		if s.Event.EventID == "a" {
			t.Fatalf("oldest entry should have been evicted")
		}
	}
}

func TestRecencyCacheSimilarThresholdAndLimit(t *testing.T) {
	c := NewRecencyCache(100)
	target := testSignature(0.25)

	for i := 0; i < 8; i++ {
		sig := testSignature(0.25 + float64(i)/1000)
		event := eventWithSignature("", sig, nil, true)
		event.EventID = string(rune('a' + i))
		c.Add(event)
	}
	// One clearly unrelated entry.
	far := similarity.Signature(models.IssueWebsocketBacklog, map[string]any{"p95_ms": 1400.0})
	c.Add(eventWithSignature("far", far, nil, true))

	sim := similarity.NewEngine(similarity.DefaultWeights(), 0)
	scored := c.Similar(sim, target, 0.75, 5)
	if len(scored) != 5 {
		t.Fatalf("expected the limit of 5, got %d", len(scored))
	}
	for i := 1; i < len(scored); i++ {
		if scored[i].Score > scored[i-1].Score {
			t.Fatalf("results not ranked by descending score")
		}
	}
	for _, s := range scored {
		if s.Event.EventID == "far" {
			t.Fatalf("unrelated entry leaked into similar results")
		}
	}
}

func TestRecencyCacheIgnoresUnkeyedEvents(t *testing.T) {
	c := NewRecencyCache(10)
	c.Add(models.HealingEvent{})
	if c.Size() != 0 {
		t.Fatalf("event without hash or id must be ignored")
	}
}
