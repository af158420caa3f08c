package main

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"
)

type histogram struct {
	Count float64 `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

func main() {
	started := time.Now()
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Operational metric snapshot with a slow sine drift so the health and
	// predictive loops see issues come and go.
	mux.HandleFunc("/api/v1/ops/metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		phase := time.Since(started).Minutes() / 10 * 2 * math.Pi
		errorRate := 0.05 + 0.15*math.Max(0, math.Sin(phase))
		requests := 5000 + 100*time.Since(started).Seconds()
		p95 := 800 + 2200*math.Max(0, math.Sin(phase))

		writeJSON(w, map[string]any{
			"counters": map[string]float64{
				"requests_total":         requests,
				"request_errors_total":   requests * errorRate,
				"agent_executions_total": 400,
				"agent_failures_total":   30,
			},
			"gauges": map[string]float64{
				"memory_usage_ratio": 0.55 + 0.35*math.Max(0, math.Sin(phase/2)),
				"error_rate":         errorRate,
			},
			"histograms": map[string]histogram{
				"http_request_duration_ms": {Count: 5000, Sum: 5000 * p95 * 0.4, Avg: p95 * 0.4, P50: p95 * 0.3, P90: p95 * 0.8, P95: p95, P99: p95 * 1.4},
				"db_query_duration_ms":     {Count: 1200, Sum: 96000, Avg: 80, P50: 40, P90: 150, P95: 220, P99: 480},
				"ws_message_duration_ms":   {Count: 800, Sum: 64000, Avg: 80, P50: 50, P90: 300, P95: 600, P99: 900},
			},
		})
	})

	// Minimal knowledge store stub: ack writes, answer queries with nothing.
	mux.HandleFunc("/v1/objects", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]any{"id": "mock"})
	})
	mux.HandleFunc("/v1/graphql", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]any{"data": map[string]any{"Get": map[string]any{"HealingEvent": []any{}}}})
	})

	logger := log.New(log.Writer(), "ops-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":9090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
