package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

// HealingEngine is the part of the engine the HTTP surface depends on.
type HealingEngine interface {
	TriggerHealing(issueType, severity string, issueContext map[string]any)
	PlanHealing(ctx context.Context, issueType, severity string, issueContext map[string]any) (models.HealingPlan, error)
	Status() models.EngineStatus
}

// PatternReader exposes aggregated knowledge-store patterns.
type PatternReader interface {
	SuccessfulPatterns(ctx context.Context, issueType models.IssueType) ([]models.HealingPattern, error)
	PrecedingPatterns(ctx context.Context, issueType models.IssueType) ([]models.PrecedingPattern, error)
}

// Handlers serves the healing REST endpoints.
type Handlers struct {
	logger   *slog.Logger
	engine   HealingEngine
	patterns PatternReader
}

// NewHandlers constructs the handler set. patterns may be nil when no
// knowledge store is configured.
func NewHandlers(logger *slog.Logger, engine HealingEngine, patterns PatternReader) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{logger: logger, engine: engine, patterns: patterns}
}

// Register attaches the routes to the router.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/healing/trigger", h.handleTrigger).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/healing/status", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/healing/patterns/{issue_type}", h.handlePatterns).Methods(http.MethodGet)
}

type triggerRequest struct {
	IssueType string         `json:"issue_type"`
	Severity  string         `json:"severity"`
	Context   map[string]any `json:"context"`
	DryRun    bool           `json:"dry_run"`
}

type triggerResponse struct {
	Accepted  bool   `json:"accepted"`
	IssueType string `json:"issue_type"`
}

type planResponse struct {
	DryRun     bool     `json:"dry_run"`
	IssueType  string   `json:"issue_type"`
	Severity   string   `json:"severity"`
	Actions    []string `json:"actions"`
	Suppressed bool     `json:"suppressed"`
}

type eventView struct {
	EventID      string   `json:"event_id"`
	IssueType    string   `json:"issue_type"`
	Severity     string   `json:"severity"`
	ActionsTaken []string `json:"actions_taken"`
	Success      bool     `json:"success"`
	DurationMs   float64  `json:"duration_ms"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

type cooldownView struct {
	IssueType   string `json:"issue_type"`
	Severity    string `json:"severity"`
	LastFiredAt string `json:"last_fired_at"`
	ExpiresAt   string `json:"expires_at"`
}

type strategyView struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	SafetyLevel string  `json:"safety_level"`
	Cost        float64 `json:"cost"`
}

type learningView struct {
	Strategy  string `json:"strategy"`
	Successes int    `json:"successes"`
	Attempts  int    `json:"attempts"`
}

type statusResponse struct {
	RecentEvents        []eventView        `json:"recent_events"`
	ActiveCooldowns     []cooldownView     `json:"active_cooldowns"`
	Thresholds          map[string]float64 `json:"thresholds"`
	AvailableStrategies []strategyView     `json:"available_strategies"`
	KnowledgeCacheSize  int                `json:"knowledge_cache_size"`
	LearningStats       []learningView     `json:"learning_stats"`
	HealingLatencyP95Ms float64            `json:"healing_latency_p95_ms"`
}

func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IssueType == "" {
		writeError(w, http.StatusBadRequest, "issue_type is required")
		return
	}

	if req.DryRun {
		plan, err := h.engine.PlanHealing(r.Context(), req.IssueType, req.Severity, req.Context)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, planResponse{
			DryRun:     true,
			IssueType:  string(plan.IssueType),
			Severity:   string(plan.Severity),
			Actions:    plan.Actions,
			Suppressed: plan.Suppressed,
		})
		return
	}

	h.engine.TriggerHealing(req.IssueType, req.Severity, req.Context)
	h.logger.Info("healing trigger accepted",
		slog.String("issue_type", req.IssueType),
		slog.String("severity", req.Severity))

	writeJSON(w, http.StatusAccepted, triggerResponse{Accepted: true, IssueType: req.IssueType})
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status()

	resp := statusResponse{
		RecentEvents:        make([]eventView, 0, len(status.RecentEvents)),
		ActiveCooldowns:     make([]cooldownView, 0, len(status.ActiveCooldowns)),
		Thresholds:          status.Thresholds,
		AvailableStrategies: make([]strategyView, 0, len(status.AvailableStrategies)),
		KnowledgeCacheSize:  status.KnowledgeCacheSize,
		LearningStats:       make([]learningView, 0, len(status.LearningStats)),
		HealingLatencyP95Ms: float64(status.HealingLatencyP95) / float64(time.Millisecond),
	}
	for _, ev := range status.RecentEvents {
		resp.RecentEvents = append(resp.RecentEvents, eventView{
			EventID:      ev.EventID,
			IssueType:    string(ev.IssueType),
			Severity:     string(ev.Severity),
			ActionsTaken: ev.ActionsTaken,
			Success:      ev.Success,
			DurationMs:   float64(ev.Duration) / float64(time.Millisecond),
			ErrorMessage: ev.ErrorMessage,
			Timestamp:    ev.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	for _, cd := range status.ActiveCooldowns {
		resp.ActiveCooldowns = append(resp.ActiveCooldowns, cooldownView{
			IssueType:   string(cd.IssueType),
			Severity:    string(cd.Severity),
			LastFiredAt: cd.LastFiredAt.UTC().Format(time.RFC3339),
			ExpiresAt:   cd.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	for _, st := range status.AvailableStrategies {
		resp.AvailableStrategies = append(resp.AvailableStrategies, strategyView{
			Name:        st.Name,
			Description: st.Description,
			SafetyLevel: st.SafetyLevel,
			Cost:        st.Cost,
		})
	}
	for _, ls := range status.LearningStats {
		resp.LearningStats = append(resp.LearningStats, learningView{
			Strategy:  ls.Strategy,
			Successes: ls.Successes,
			Attempts:  ls.Attempts,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type actionPatternView struct {
	Action      string  `json:"action"`
	SuccessRate float64 `json:"success_rate"`
	Occurrences int     `json:"occurrences"`
}

type precedingPatternView struct {
	Metric             string  `json:"metric"`
	Direction          string  `json:"direction"`
	TypicalLeadSeconds float64 `json:"typical_lead_seconds"`
	Confidence         float64 `json:"confidence"`
}

type patternsResponse struct {
	IssueType  string                 `json:"issue_type"`
	Successful []actionPatternView    `json:"successful"`
	Preceding  []precedingPatternView `json:"preceding"`
}

func (h *Handlers) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if h.patterns == nil {
		writeError(w, http.StatusNotFound, "knowledge store not configured")
		return
	}
	issueType := models.IssueType(mux.Vars(r)["issue_type"])

	successful, err := h.patterns.SuccessfulPatterns(r.Context(), issueType)
	if err != nil {
		h.logger.Warn("successful pattern lookup failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "knowledge store unavailable")
		return
	}
	preceding, err := h.patterns.PrecedingPatterns(r.Context(), issueType)
	if err != nil {
		h.logger.Warn("preceding pattern lookup failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "knowledge store unavailable")
		return
	}

	resp := patternsResponse{
		IssueType:  string(issueType),
		Successful: make([]actionPatternView, 0, len(successful)),
		Preceding:  make([]precedingPatternView, 0, len(preceding)),
	}
	for _, p := range successful {
		resp.Successful = append(resp.Successful, actionPatternView{
			Action:      p.Action,
			SuccessRate: p.SuccessRate,
			Occurrences: p.Occurrences,
		})
	}
	for _, p := range preceding {
		resp.Preceding = append(resp.Preceding, precedingPatternView{
			Metric:             p.Metric,
			Direction:          p.Direction,
			TypicalLeadSeconds: p.TypicalLead.Seconds(),
			Confidence:         p.Confidence,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
