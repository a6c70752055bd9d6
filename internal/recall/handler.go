package recall

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/internal/observability/metrics"
	"github.com/catchallhq/dental-crm/internal/patients"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

// PatientGetter loads the patient a schedule request refers to.
type PatientGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
}

// Handler handles HTTP requests for recall rules and dispatches.
type Handler struct {
	store    *Store
	patients PatientGetter
	metrics  *metrics.CRMMetrics
	logger   *logging.Logger
}

// NewHandler creates a recall handler.
func NewHandler(store *Store, pg PatientGetter, m *metrics.CRMMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, patients: pg, metrics: m, logger: logger}
}

// ListRules handles GET /recall/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListRules(r.Context(), r.URL.Query().Get("treatment"))
	if err != nil {
		h.logger.Error("failed to list recall rules", "error", err)
		http.Error(w, "failed to list rules", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

// RuleRequest is the body for PUT /recall/rules.
type RuleRequest struct {
	Treatment string `json:"treatment"`
	Timing    string `json:"timing"`
	Template  string `json:"template"`
	Enabled   bool   `json:"enabled"`
	SortOrder int    `json:"sort_order"`
}

// UpsertRule handles PUT /recall/rules.
func (h *Handler) UpsertRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Treatment == "" {
		http.Error(w, "treatment is required", http.StatusBadRequest)
		return
	}

	rule := &Rule{
		Treatment: req.Treatment,
		Timing:    req.Timing,
		Template:  req.Template,
		Enabled:   req.Enabled,
		SortOrder: req.SortOrder,
	}
	if err := h.store.UpsertRule(r.Context(), rule); err != nil {
		if errors.Is(err, ErrUnknownTiming) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to upsert recall rule", "error", err)
		http.Error(w, "failed to save rule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /recall/rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			http.Error(w, "rule not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete recall rule", "error", err, "id", id)
		http.Error(w, "failed to delete rule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ScheduleRequest is the body for POST /recall/schedule.
type ScheduleRequest struct {
	PatientID string `json:"patient_id"`
	Treatment string `json:"treatment"`
	LastVisit string `json:"last_visit"` // YYYY-MM-DD
}

// Schedule handles POST /recall/schedule: resolves the rule sequence for a
// completed treatment into dispatches. Safe to call repeatedly.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		http.Error(w, "invalid patient_id", http.StatusBadRequest)
		return
	}
	if req.Treatment == "" {
		http.Error(w, "treatment is required", http.StatusBadRequest)
		return
	}
	lastVisit, err := time.Parse(time.DateOnly, req.LastVisit)
	if err != nil {
		http.Error(w, "invalid last_visit, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	p, err := h.patients.GetByID(r.Context(), patientID)
	if err != nil {
		if errors.Is(err, patients.ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load patient for schedule", "error", err, "id", patientID)
		http.Error(w, "failed to schedule recall", http.StatusInternalServerError)
		return
	}

	rules, err := h.store.ListRules(r.Context(), req.Treatment)
	if err != nil {
		h.logger.Error("failed to load recall rules", "error", err)
		http.Error(w, "failed to schedule recall", http.StatusInternalServerError)
		return
	}
	existing, err := h.store.ExistingTimings(r.Context(), patientID, req.Treatment)
	if err != nil {
		h.logger.Error("failed to load existing timings", "error", err)
		http.Error(w, "failed to schedule recall", http.StatusInternalServerError)
		return
	}

	resolved := Resolve(ScheduleInput{
		PatientID:   patientID,
		PatientName: p.Name,
		Treatment:   req.Treatment,
		LastVisit:   lastVisit,
	}, rules, existing, time.Now())

	created := 0
	for i := range resolved {
		inserted, err := h.store.CreateDispatch(r.Context(), &resolved[i])
		if err != nil {
			h.logger.Error("failed to create dispatch", "error", err, "patient_id", patientID)
			http.Error(w, "failed to schedule recall", http.StatusInternalServerError)
			return
		}
		if inserted {
			created++
		}
	}

	h.logger.Info("recall schedule resolved",
		"patient_id", patientID, "treatment", req.Treatment, "created", created)
	writeJSON(w, http.StatusOK, map[string]any{"created": created, "dispatches": resolved})
}

// DispatchView decorates a dispatch with the derived wait duration.
type DispatchView struct {
	Dispatch
	DaysPassed int `json:"days_passed"`
}

// ListDispatches handles GET /recall/dispatches.
func (h *Handler) ListDispatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := DispatchFilter{
		Status:    DispatchStatus(q.Get("status")),
		Treatment: q.Get("treatment"),
	}
	if raw := q.Get("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid patient_id", http.StatusBadRequest)
			return
		}
		filter.PatientID = id
	}

	list, err := h.store.ListDispatches(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list dispatches", "error", err)
		http.Error(w, "failed to list dispatches", http.StatusInternalServerError)
		return
	}

	today := time.Now()
	views := make([]DispatchView, 0, len(list))
	for i := range list {
		views = append(views, DispatchView{Dispatch: list[i], DaysPassed: list[i].DaysPassed(today)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"dispatches": views, "count": len(views)})
}

// MarkBooked handles POST /recall/dispatches/{id}/booked.
func (h *Handler) MarkBooked(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "dispatchID"))
	if err != nil {
		http.Error(w, "invalid dispatch id", http.StatusBadRequest)
		return
	}

	d, err := h.store.MarkBooked(r.Context(), id, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, ErrDispatchNotFound):
			http.Error(w, "dispatch not found", http.StatusNotFound)
		case errors.Is(err, ErrNotBookable):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to mark dispatch booked", "error", err, "id", id)
			http.Error(w, "failed to update dispatch", http.StatusInternalServerError)
		}
		return
	}

	h.metrics.ObserveRecallOutcome("booked")
	writeJSON(w, http.StatusOK, d)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
