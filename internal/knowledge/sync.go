package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/patterns"
)

// Syncer periodically reconciles recently stored healing events into the
// local recency cache so future strategy selection can consult them without
// a store round-trip. When a miner is configured it also refreshes the
// preceding-pattern aggregates from the same fetch.
type Syncer struct {
	client *Client
	cache  *RecencyCache
	miner  *patterns.Miner
	window time.Duration
	logger *slog.Logger
}

// NewSyncer constructs a Syncer; miner may be nil.
func NewSyncer(logger *slog.Logger, client *Client, cache *RecencyCache, miner *patterns.Miner, window time.Duration) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Syncer{
		client: client,
		cache:  cache,
		miner:  miner,
		window: window,
		logger: logger,
	}
}

// RunOnce fetches recent insights and merges them into the cache. A store
// failure leaves the cache as-is; the loop retries next tick.
func (s *Syncer) RunOnce(ctx context.Context) error {
	if s.client == nil || s.cache == nil {
		return nil
	}

	events, err := s.client.RecentInsights(ctx, s.window)
	if err != nil {
		return fmt.Errorf("knowledge sync: %w", err)
	}

	for _, event := range events {
		s.cache.Add(event)
	}

	if s.miner != nil {
		if _, err := s.miner.Mine(ctx, events); err != nil {
			s.logger.Warn("pattern mining failed", slog.Any("error", err))
		}
	}

	s.logger.Debug("knowledge sync completed",
		slog.Int("fetched", len(events)),
		slog.Int("cache_size", s.cache.Size()))
	return nil
}
