package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/models"
	"github.com/sentinelstack/sentinel-heal/internal/similarity"
	"github.com/sentinelstack/sentinel-heal/internal/utils"
)

// Store is the raw persistence boundary. Similarity filtering and success
// aggregation happen in the Client, not in the store.
type Store interface {
	StoreEvent(ctx context.Context, event models.HealingEvent) error
	QuerySimilar(ctx context.Context, domain string, limit int) ([]models.HealingEvent, error)
	QuerySuccessful(ctx context.Context, issueType models.IssueType) ([]models.HealingEvent, error)
	QueryPrecedingPatterns(ctx context.Context, issueType models.IssueType) ([]models.PrecedingPattern, error)
	QueryRecent(ctx context.Context, window time.Duration) ([]models.HealingEvent, error)
}

// ScoredEvent pairs a historical event with its similarity to the current
// incident signature.
type ScoredEvent struct {
	Event models.HealingEvent
	Score float64
}

// Client is the stateless facade the control loop talks to. It ranks raw
// candidates by signature similarity and aggregates success patterns.
type Client struct {
	store       Store
	sim         *similarity.Engine
	logger      *slog.Logger
	domain      string
	fetchWindow int
	threshold   float64
	maxResults  int
}

// ClientConfig tunes retrieval behaviour.
type ClientConfig struct {
	Domain              string
	FetchWindow         int
	SimilarityThreshold float64
	MaxResults          int
}

// NewClient constructs a knowledge client.
func NewClient(logger *slog.Logger, store Store, sim *similarity.Engine, cfg ClientConfig) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if sim == nil {
		sim = similarity.NewEngine(similarity.DefaultWeights(), 0)
	}
	if cfg.Domain == "" {
		cfg.Domain = "healing"
	}
	if cfg.FetchWindow <= 0 {
		cfg.FetchWindow = 20
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = 0.75
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	return &Client{
		store:       store,
		sim:         sim,
		logger:      logger,
		domain:      cfg.Domain,
		fetchWindow: cfg.FetchWindow,
		threshold:   cfg.SimilarityThreshold,
		maxResults:  cfg.MaxResults,
	}
}

// FindSimilarIncidents fetches a bounded recent window of prior events,
// scores each against the signature, and returns those at or above the
// threshold sorted by descending similarity.
func (c *Client) FindSimilarIncidents(ctx context.Context, signature string) ([]ScoredEvent, error) {
	if c.store == nil {
		return nil, nil
	}

	candidates, err := c.store.QuerySimilar(ctx, c.domain, c.fetchWindow)
	if err != nil {
		return nil, fmt.Errorf("query similar: %w", err)
	}

	scored := make([]ScoredEvent, 0, len(candidates))
	for _, event := range candidates {
		score := c.sim.Score(signature, event.ContextSignature)
		if score >= c.threshold {
			scored = append(scored, ScoredEvent{Event: event, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > c.maxResults {
		scored = scored[:c.maxResults]
	}
	return scored, nil
}

// SuccessfulPatterns aggregates actions across successful events of the
// issue type into per-action success rates, sorted descending.
func (c *Client) SuccessfulPatterns(ctx context.Context, issueType models.IssueType) ([]models.HealingPattern, error) {
	if c.store == nil {
		return nil, nil
	}

	events, err := c.store.QuerySuccessful(ctx, issueType)
	if err != nil {
		return nil, fmt.Errorf("query successful events: %w", err)
	}

	return AggregatePatterns(issueType, events), nil
}

// PrecedingPatterns returns leading-indicator patterns for the issue type.
func (c *Client) PrecedingPatterns(ctx context.Context, issueType models.IssueType) ([]models.PrecedingPattern, error) {
	if c.store == nil {
		return nil, nil
	}
	patterns, err := c.store.QueryPrecedingPatterns(ctx, issueType)
	if err != nil {
		return nil, fmt.Errorf("query preceding patterns: %w", err)
	}
	return patterns, nil
}

// RecentInsights returns events stored within the window, used to refresh
// the recency cache.
func (c *Client) RecentInsights(ctx context.Context, window time.Duration) ([]models.HealingEvent, error) {
	if c.store == nil {
		return nil, nil
	}
	events, err := c.store.QueryRecent(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	return events, nil
}

// Store appends one healing event. Failures are reported to the caller,
// which logs and continues: the remediation already happened regardless of
// whether the learning write succeeds.
func (c *Client) Store(ctx context.Context, event models.HealingEvent) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.StoreEvent(ctx, event); err != nil {
		return utils.NewAppError("knowledge.Store", "store healing event", err)
	}
	return nil
}

// AggregatePatterns computes the per-action {success_rate, occurrences}
// ranking from event history. Only actions recorded in events marked
// successful count as successes; every appearance counts toward the total.
func AggregatePatterns(issueType models.IssueType, events []models.HealingEvent) []models.HealingPattern {
	type tally struct {
		successes int
		total     int
	}
	tallies := make(map[string]*tally)
	order := make([]string, 0)

	for _, event := range events {
		for _, action := range event.ActionsTaken {
			t, ok := tallies[action]
			if !ok {
				t = &tally{}
				tallies[action] = t
				order = append(order, action)
			}
			t.total++
			if event.Success {
				t.successes++
			}
		}
	}

	patterns := make([]models.HealingPattern, 0, len(order))
	for _, action := range order {
		t := tallies[action]
		patterns = append(patterns, models.HealingPattern{
			IssueType:   issueType,
			Action:      action,
			SuccessRate: float64(t.successes) / float64(t.total),
			Occurrences: t.total,
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].SuccessRate > patterns[j].SuccessRate
	})
	return patterns
}
