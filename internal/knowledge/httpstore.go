package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/cache"
	"github.com/sentinelstack/sentinel-heal/internal/models"
	"github.com/sentinelstack/sentinel-heal/internal/utils"
)

// HTTPStore implements Store against a Weaviate-compatible document/graph
// store: appends via the objects API, reads via GraphQL.
type HTTPStore struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      cache.Provider
	similarTTL time.Duration
	patternTTL time.Duration
}

// NewHTTPStore constructs an HTTPStore. An empty endpoint yields a store
// that reads nothing and acknowledges writes, so the loop degrades to its
// hand-authored defaults instead of failing.
func NewHTTPStore(endpoint, apiKey string, timeout time.Duration, cacheProvider cache.Provider, similarTTL, patternTTL time.Duration) *HTTPStore {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if similarTTL < 0 {
		similarTTL = 0
	}
	if patternTTL < 0 {
		patternTTL = 0
	}
	return &HTTPStore{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		similarTTL: similarTTL,
		patternTTL: patternTTL,
	}
}

type eventProperties struct {
	EventID          string            `json:"eventId"`
	IssueType        string            `json:"issueType"`
	Severity         string            `json:"severity"`
	ContextSignature string            `json:"contextSignature"`
	ContextHash      string            `json:"contextHash"`
	ActionsTaken     []string          `json:"actionsTaken"`
	Success          bool              `json:"success"`
	DurationMs       float64           `json:"durationMs"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	CPUPercent       float64           `json:"cpuPercent"`
	MemoryPercent    float64           `json:"memoryPercent"`
	Load1            float64           `json:"load1"`
	Goroutines       int               `json:"goroutines"`
	Timestamp        string            `json:"timestamp"`
	Domain           string            `json:"domain"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// StoreEvent persists one healing event as a HealingEvent object.
func (s *HTTPStore) StoreEvent(ctx context.Context, event models.HealingEvent) error {
	if s == nil {
		return fmt.Errorf("knowledge store not initialised")
	}
	if s.endpoint == "" {
		return nil
	}

	payload := map[string]any{
		"class":      "HealingEvent",
		"properties": buildEventProperties(event),
	}
	if event.EventID != "" {
		payload["id"] = event.EventID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/objects", bytes.NewReader(body))
	if err != nil {
		return err
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("store event failed: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// StorePatterns persists mined preceding patterns, one PrecedingPattern
// object each. The pattern cache entry for the issue type is invalidated so
// the next read sees the refreshed aggregates.
func (s *HTTPStore) StorePatterns(ctx context.Context, patterns []models.PrecedingPattern) error {
	if s == nil {
		return fmt.Errorf("knowledge store not initialised")
	}
	if s.endpoint == "" {
		return nil
	}

	for _, pattern := range patterns {
		payload := map[string]any{
			"class": "PrecedingPattern",
			"properties": map[string]any{
				"issueType":          string(pattern.IssueType),
				"metric":             pattern.Metric,
				"direction":          pattern.Direction,
				"typicalLeadSeconds": pattern.TypicalLead.Seconds(),
				"confidence":         pattern.Confidence,
			},
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal pattern: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/objects", bytes.NewReader(body))
		if err != nil {
			return err
		}
		s.setHeaders(req)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("store pattern failed: status %d", resp.StatusCode)
		}

		if s.patternTTL > 0 {
			_ = s.cache.Del(ctx, fmt.Sprintf("knowledge:preceding:%s", pattern.IssueType))
		}
	}
	return nil
}

// QuerySimilar fetches the most recent events in the domain as raw
// candidates for similarity filtering.
func (s *HTTPStore) QuerySimilar(ctx context.Context, domain string, limit int) ([]models.HealingEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("knowledge store not initialised")
	}
	if s.endpoint == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	cacheKey := ""
	if s.similarTTL > 0 {
		cacheKey = fmt.Sprintf("knowledge:similar:%s:%d", domain, limit)
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.HealingEvent
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	gql := fmt.Sprintf(`{
  Get {
    HealingEvent(
      limit: %d
      where: {path: ["domain"], operator: Equal, valueString: "%s"}
      sort: [{path: "timestamp", order: desc}]
    ) {
      %s
    }
  }
}`, limit, domain, eventFieldSelection)

	events, err := s.queryEvents(ctx, gql)
	if err != nil {
		return nil, err
	}

	if s.similarTTL > 0 && cacheKey != "" && len(events) > 0 {
		if payload, err := json.Marshal(events); err == nil {
			_ = s.cache.Set(ctx, cacheKey, payload, s.similarTTL)
		}
	}
	return events, nil
}

// QuerySuccessful fetches successful events of the issue type.
func (s *HTTPStore) QuerySuccessful(ctx context.Context, issueType models.IssueType) ([]models.HealingEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("knowledge store not initialised")
	}
	if s.endpoint == "" {
		return nil, nil
	}

	gql := fmt.Sprintf(`{
  Get {
    HealingEvent(
      limit: 100
      where: {
        operator: And
        operands: [
          {path: ["issueType"], operator: Equal, valueString: "%s"}
          {path: ["success"], operator: Equal, valueBoolean: true}
        ]
      }
    ) {
      %s
    }
  }
}`, issueType, eventFieldSelection)

	return s.queryEvents(ctx, gql)
}

// QueryPrecedingPatterns fetches leading-indicator patterns for the
// issue type.
func (s *HTTPStore) QueryPrecedingPatterns(ctx context.Context, issueType models.IssueType) ([]models.PrecedingPattern, error) {
	if s == nil {
		return nil, fmt.Errorf("knowledge store not initialised")
	}
	if s.endpoint == "" {
		return nil, nil
	}

	cacheKey := ""
	if s.patternTTL > 0 {
		cacheKey = fmt.Sprintf("knowledge:preceding:%s", issueType)
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.PrecedingPattern
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	gql := fmt.Sprintf(`{
  Get {
    PrecedingPattern(
      limit: 20
      where: {path: ["issueType"], operator: Equal, valueString: "%s"}
    ) {
      issueType
      metric
      direction
      typicalLeadSeconds
      confidence
    }
  }
}`, issueType)

	var response struct {
		Data struct {
			Get struct {
				PrecedingPattern []struct {
					IssueType          string  `json:"issueType"`
					Metric             string  `json:"metric"`
					Direction          string  `json:"direction"`
					TypicalLeadSeconds float64 `json:"typicalLeadSeconds"`
					Confidence         float64 `json:"confidence"`
				} `json:"PrecedingPattern"`
			} `json:"Get"`
		} `json:"data"`
	}

	if err := s.graphql(ctx, gql, &response); err != nil {
		return nil, err
	}

	patterns := make([]models.PrecedingPattern, 0, len(response.Data.Get.PrecedingPattern))
	for _, p := range response.Data.Get.PrecedingPattern {
		patterns = append(patterns, models.PrecedingPattern{
			IssueType:   models.IssueType(p.IssueType),
			Metric:      p.Metric,
			Direction:   p.Direction,
			TypicalLead: time.Duration(p.TypicalLeadSeconds * float64(time.Second)),
			Confidence:  p.Confidence,
		})
	}

	if s.patternTTL > 0 && cacheKey != "" && len(patterns) > 0 {
		if payload, err := json.Marshal(patterns); err == nil {
			_ = s.cache.Set(ctx, cacheKey, payload, s.patternTTL)
		}
	}
	return patterns, nil
}

// QueryRecent fetches events stored within the window.
func (s *HTTPStore) QueryRecent(ctx context.Context, window time.Duration) ([]models.HealingEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("knowledge store not initialised")
	}
	if s.endpoint == "" {
		return nil, nil
	}
	if window <= 0 {
		window = 24 * time.Hour
	}

	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)
	gql := fmt.Sprintf(`{
  Get {
    HealingEvent(
      limit: 200
      where: {path: ["timestamp"], operator: GreaterThan, valueDate: "%s"}
      sort: [{path: "timestamp", order: desc}]
    ) {
      %s
    }
  }
}`, cutoff, eventFieldSelection)

	return s.queryEvents(ctx, gql)
}

const eventFieldSelection = `eventId
      issueType
      severity
      contextSignature
      contextHash
      actionsTaken
      success
      durationMs
      errorMessage
      cpuPercent
      memoryPercent
      load1
      goroutines
      timestamp`

func (s *HTTPStore) queryEvents(ctx context.Context, gql string) ([]models.HealingEvent, error) {
	var response struct {
		Data struct {
			Get struct {
				HealingEvent []eventProperties `json:"HealingEvent"`
			} `json:"Get"`
		} `json:"data"`
	}

	if err := s.graphql(ctx, gql, &response); err != nil {
		return nil, err
	}

	events := make([]models.HealingEvent, 0, len(response.Data.Get.HealingEvent))
	for _, rec := range response.Data.Get.HealingEvent {
		ts, _ := utils.ParseRFC3339(rec.Timestamp)
		events = append(events, models.HealingEvent{
			EventID:          rec.EventID,
			IssueType:        models.IssueType(rec.IssueType),
			Severity:         models.Severity(rec.Severity),
			ContextSignature: rec.ContextSignature,
			ContextHash:      rec.ContextHash,
			ActionsTaken:     rec.ActionsTaken,
			Success:          rec.Success,
			Duration:         time.Duration(rec.DurationMs * float64(time.Millisecond)),
			ErrorMessage:     rec.ErrorMessage,
			SystemMetrics: models.SystemMetrics{
				CPUPercent:    rec.CPUPercent,
				MemoryPercent: rec.MemoryPercent,
				Load1:         rec.Load1,
				Goroutines:    rec.Goroutines,
			},
			Timestamp: ts,
			Metadata:  rec.Metadata,
		})
	}
	return events, nil
}

func (s *HTTPStore) graphql(ctx context.Context, query string, out any) error {
	payload, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/graphql", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("knowledge store query failed: %s", strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode query response: %w", err)
	}
	return nil
}

func (s *HTTPStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

func buildEventProperties(event models.HealingEvent) eventProperties {
	return eventProperties{
		EventID:          event.EventID,
		IssueType:        string(event.IssueType),
		Severity:         string(event.Severity),
		ContextSignature: event.ContextSignature,
		ContextHash:      event.ContextHash,
		ActionsTaken:     event.ActionsTaken,
		Success:          event.Success,
		DurationMs:       float64(event.Duration) / float64(time.Millisecond),
		ErrorMessage:     event.ErrorMessage,
		CPUPercent:       event.SystemMetrics.CPUPercent,
		MemoryPercent:    event.SystemMetrics.MemoryPercent,
		Load1:            event.SystemMetrics.Load1,
		Goroutines:       event.SystemMetrics.Goroutines,
		Timestamp:        event.Timestamp.UTC().Format(time.RFC3339),
		Domain:           "healing",
		Metadata:         event.Metadata,
	}
}
