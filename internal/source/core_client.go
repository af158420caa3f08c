package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

// CoreClient pulls metric snapshots from the ops aggregation API over HTTP.
type CoreClient struct {
	baseURL      string
	snapshotPath string
	httpClient   *http.Client
}

// NewCoreClient constructs a CoreClient with the given timeout.
func NewCoreClient(baseURL, snapshotPath string, timeout time.Duration) *CoreClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if snapshotPath == "" {
		snapshotPath = "/api/v1/ops/metrics"
	}
	return &CoreClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		snapshotPath: snapshotPath,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type snapshotResponse struct {
	Counters   map[string]float64 `json:"counters"`
	Gauges     map[string]float64 `json:"gauges"`
	Histograms map[string]struct {
		Count float64 `json:"count"`
		Sum   float64 `json:"sum"`
		Avg   float64 `json:"avg"`
		P50   float64 `json:"p50"`
		P90   float64 `json:"p90"`
		P95   float64 `json:"p95"`
		P99   float64 `json:"p99"`
	} `json:"histograms"`
}

// Snapshot fetches a full metric snapshot.
func (c *CoreClient) Snapshot(ctx context.Context) (models.MetricSnapshot, error) {
	if c == nil {
		return models.MetricSnapshot{}, fmt.Errorf("core client not initialised")
	}
	if c.baseURL == "" {
		return models.MetricSnapshot{}, fmt.Errorf("core base URL not configured")
	}

	var response snapshotResponse
	if err := c.getJSON(ctx, c.snapshotURL(), &response); err != nil {
		return models.MetricSnapshot{}, fmt.Errorf("ops metrics request failed: %w", err)
	}

	snapshot := models.MetricSnapshot{
		Counters:   response.Counters,
		Gauges:     response.Gauges,
		Histograms: make(map[string]models.HistogramStats, len(response.Histograms)),
		At:         time.Now().UTC(),
	}
	if snapshot.Counters == nil {
		snapshot.Counters = map[string]float64{}
	}
	if snapshot.Gauges == nil {
		snapshot.Gauges = map[string]float64{}
	}
	for name, h := range response.Histograms {
		snapshot.Histograms[name] = models.HistogramStats{
			Count: h.Count,
			Sum:   h.Sum,
			Avg:   h.Avg,
			P50:   h.P50,
			P90:   h.P90,
			P95:   h.P95,
			P99:   h.P99,
		}
	}
	return snapshot, nil
}

// Counters fetches the current counter map.
func (c *CoreClient) Counters(ctx context.Context) (map[string]float64, error) {
	snapshot, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Counters, nil
}

// Gauges fetches the current gauge map.
func (c *CoreClient) Gauges(ctx context.Context) (map[string]float64, error) {
	snapshot, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Gauges, nil
}

// HistogramStats fetches the summary for a single named histogram.
func (c *CoreClient) HistogramStats(ctx context.Context, name string) (models.HistogramStats, error) {
	snapshot, err := c.Snapshot(ctx)
	if err != nil {
		return models.HistogramStats{}, err
	}
	stats, ok := snapshot.Histogram(name)
	if !ok {
		return models.HistogramStats{}, fmt.Errorf("histogram %q not reported", name)
	}
	return stats, nil
}

func (c *CoreClient) snapshotURL() string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(c.snapshotPath, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *CoreClient) getJSON(ctx context.Context, endpoint string, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ops metrics returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
