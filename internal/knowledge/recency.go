package knowledge

import (
	"sort"
	"sync"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/models"
	"github.com/sentinelstack/sentinel-heal/internal/similarity"
)

// RecencyCache is a bounded in-memory view of recent healing events keyed by
// context hash. It is an optimisation only: a cold cache behaves as "no
// similar incidents" and strategy selection falls back to defaults.
type RecencyCache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]cacheEntry
}

type cacheEntry struct {
	event  models.HealingEvent
	seenAt time.Time
}

// NewRecencyCache creates a cache holding up to capacity events.
func NewRecencyCache(capacity int) *RecencyCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RecencyCache{
		capacity: capacity,
		entries:  make(map[string]cacheEntry),
	}
}

// Add merges one event, overwriting any entry with the same context hash and
// evicting the oldest entry once capacity is exceeded.
func (c *RecencyCache) Add(event models.HealingEvent) {
	key := event.ContextHash
	if key == "" {
		key = event.EventID
	}
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := event.Timestamp
	if seen.IsZero() {
		seen = time.Now().UTC()
	}
	c.entries[key] = cacheEntry{event: event, seenAt: seen}

	for len(c.entries) > c.capacity {
		oldestKey := ""
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.seenAt.Before(oldest) {
				oldestKey = k
				oldest = e.seenAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// Similar returns cached events whose signature similarity to the given
// signature meets the threshold, ranked descending and capped at limit.
func (c *RecencyCache) Similar(sim *similarity.Engine, signature string, threshold float64, limit int) []ScoredEvent {
	if sim == nil || signature == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	scored := make([]ScoredEvent, 0)
	for _, entry := range c.entries {
		score := sim.Score(signature, entry.event.ContextSignature)
		if score >= threshold {
			scored = append(scored, ScoredEvent{Event: entry.event, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// Size returns the number of cached events.
func (c *RecencyCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
