package source

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func stubResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const snapshotBody = `{
  "counters": {"requests_total": 1000, "request_errors_total": 50},
  "gauges": {"memory_usage_ratio": 0.72},
  "histograms": {
    "http_request_duration_ms": {"count": 1000, "sum": 420000, "avg": 420, "p50": 300, "p90": 900, "p95": 1200, "p99": 2400}
  }
}`

func TestSnapshotParsesMetrics(t *testing.T) {
	var gotPath string
	client := NewCoreClient("http://core:8081/", "", 2*time.Second)
	client.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		if req.Header.Get("Accept") != "application/json" {
			t.Fatalf("accept header = %q", req.Header.Get("Accept"))
		}
		return stubResponse(http.StatusOK, snapshotBody), nil
	})

	snapshot, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if gotPath != "/api/v1/ops/metrics" {
		t.Fatalf("path = %q, want default snapshot path", gotPath)
	}
	if snapshot.Counters["requests_total"] != 1000 {
		t.Fatalf("requests_total = %v", snapshot.Counters["requests_total"])
	}
	if snapshot.Gauges["memory_usage_ratio"] != 0.72 {
		t.Fatalf("memory_usage_ratio = %v", snapshot.Gauges["memory_usage_ratio"])
	}
	stats, ok := snapshot.Histogram("http_request_duration_ms")
	if !ok {
		t.Fatal("http_request_duration_ms missing")
	}
	if stats.P95 != 1200 || stats.Count != 1000 {
		t.Fatalf("histogram = %+v", stats)
	}
	if snapshot.At.IsZero() {
		t.Fatal("snapshot time not set")
	}
}

func TestSnapshotCustomPath(t *testing.T) {
	var gotPath string
	client := NewCoreClient("http://core:8081", "/internal/metrics", time.Second)
	client.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		return stubResponse(http.StatusOK, `{}`), nil
	})

	if _, err := client.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if gotPath != "/internal/metrics" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestSnapshotEmptyBodyYieldsEmptyMaps(t *testing.T) {
	client := NewCoreClient("http://core:8081", "", time.Second)
	client.httpClient.Transport = roundTripFunc(func(*http.Request) (*http.Response, error) {
		return stubResponse(http.StatusOK, `{}`), nil
	})

	snapshot, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snapshot.Counters == nil || snapshot.Gauges == nil || snapshot.Histograms == nil {
		t.Fatalf("maps should be non-nil: %+v", snapshot)
	}
}

func TestSnapshotWithoutBaseURL(t *testing.T) {
	client := NewCoreClient("", "", time.Second)
	if _, err := client.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error without a base URL")
	}
}

func TestSnapshotUpstreamError(t *testing.T) {
	client := NewCoreClient("http://core:8081", "", time.Second)
	client.httpClient.Transport = roundTripFunc(func(*http.Request) (*http.Response, error) {
		return stubResponse(http.StatusServiceUnavailable, `overloaded`), nil
	})

	if _, err := client.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestHistogramStatsUnknownName(t *testing.T) {
	client := NewCoreClient("http://core:8081", "", time.Second)
	client.httpClient.Transport = roundTripFunc(func(*http.Request) (*http.Response, error) {
		return stubResponse(http.StatusOK, snapshotBody), nil
	})

	if _, err := client.HistogramStats(context.Background(), "db_query_duration_ms"); err == nil {
		t.Fatal("expected error for an unreported histogram")
	}
}
