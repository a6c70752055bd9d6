package reports

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/catchallhq/dental-crm/pkg/logging"
)

// Repository defines the aggregate queries the handler needs.
type Repository interface {
	FunnelCounts(ctx context.Context) ([]FunnelCount, error)
	RecallStats(ctx context.Context, since time.Time) (*RecallStats, error)
	Revenue(ctx context.Context, year int) ([]MonthlyRevenue, error)
}

// UrgencyReporter serves the cached urgency snapshot.
type UrgencyReporter interface {
	UrgencySummary(ctx context.Context) (*UrgencySnapshot, error)
}

// Handler handles HTTP requests for reports.
type Handler struct {
	repo    Repository
	urgency UrgencyReporter
	logger  *logging.Logger
}

// NewHandler creates a reports handler.
func NewHandler(repo Repository, urgency UrgencyReporter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, urgency: urgency, logger: logger}
}

// Funnel handles GET /reports/funnel.
func (h *Handler) Funnel(w http.ResponseWriter, r *http.Request) {
	counts, err := h.repo.FunnelCounts(r.Context())
	if err != nil {
		h.logger.Error("failed to load funnel counts", "error", err)
		http.Error(w, "failed to load funnel report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"funnel": counts})
}

// Urgent handles GET /reports/urgent.
func (h *Handler) Urgent(w http.ResponseWriter, r *http.Request) {
	snap, err := h.urgency.UrgencySummary(r.Context())
	if err != nil {
		h.logger.Error("failed to compute urgency summary", "error", err)
		http.Error(w, "failed to load urgency report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Recall handles GET /reports/recall. days defaults to the last 30.
func (h *Handler) Recall(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	stats, err := h.repo.RecallStats(r.Context(), since)
	if err != nil {
		h.logger.Error("failed to load recall stats", "error", err)
		http.Error(w, "failed to load recall report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Revenue handles GET /reports/revenue?year=YYYY.
func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	if year == 0 {
		year = time.Now().Year()
	}

	months, err := h.repo.Revenue(r.Context(), year)
	if err != nil {
		h.logger.Error("failed to load revenue report", "error", err)
		http.Error(w, "failed to load revenue report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "months": months})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
