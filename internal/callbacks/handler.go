package callbacks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/pkg/logging"
)

// Repository defines the storage operations the handler needs.
type Repository interface {
	Create(ctx context.Context, c *Callback) error
	GetByID(ctx context.Context, id uuid.UUID) (*Callback, error)
	List(ctx context.Context, filter ListFilter) ([]Callback, error)
	ListOverdue(ctx context.Context, today time.Time) ([]Callback, error)
	Resolve(ctx context.Context, id uuid.UUID, outcome Status, resultNote string) (*Callback, error)
}

// Handler handles HTTP requests for the callback worklist.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a callbacks handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// CreateRequest is the body for POST /callbacks.
type CreateRequest struct {
	PatientID   string `json:"patient_id"`
	Type        string `json:"type"`
	ScheduledAt string `json:"scheduled_at"` // YYYY-MM-DD
	Note        string `json:"note"`
}

// Create handles POST /callbacks.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		http.Error(w, "invalid patient_id", http.StatusBadRequest)
		return
	}
	scheduledAt, err := time.Parse(time.DateOnly, req.ScheduledAt)
	if err != nil {
		http.Error(w, "invalid scheduled_at, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	c := &Callback{
		PatientID:   patientID,
		Type:        Type(req.Type),
		ScheduledAt: scheduledAt,
		Note:        req.Note,
	}
	if err := h.repo.Create(r.Context(), c); err != nil {
		if errors.Is(err, ErrUnknownType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to create callback", "error", err)
		http.Error(w, "failed to create callback", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// List handles GET /callbacks. Supports patient_id, status, type and date
// query parameters; date=today is resolved server-side.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	if raw := q.Get("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid patient_id", http.StatusBadRequest)
			return
		}
		filter.PatientID = id
	}
	if status := q.Get("status"); status != "" {
		if !Status(status).Valid() {
			http.Error(w, "unknown status filter", http.StatusBadRequest)
			return
		}
		filter.Status = Status(status)
	}
	if typ := q.Get("type"); typ != "" {
		if !Type(typ).Valid() {
			http.Error(w, "unknown type filter", http.StatusBadRequest)
			return
		}
		filter.Type = Type(typ)
	}
	if raw := q.Get("date"); raw != "" {
		date := time.Now()
		if raw != "today" {
			parsed, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			date = parsed
		}
		filter.Date = &date
	}

	list, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list callbacks", "error", err)
		http.Error(w, "failed to list callbacks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"callbacks": list, "count": len(list)})
}

// Overdue handles GET /callbacks/overdue.
func (h *Handler) Overdue(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.ListOverdue(r.Context(), time.Now())
	if err != nil {
		h.logger.Error("failed to list overdue callbacks", "error", err)
		http.Error(w, "failed to list callbacks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"callbacks": list, "count": len(list)})
}

// ResolveRequest is the body for POST /callbacks/{id}/resolve.
type ResolveRequest struct {
	Outcome    string `json:"outcome"` // completed | missed
	ResultNote string `json:"result_note"`
}

// Resolve handles POST /callbacks/{id}/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "callbackID"))
	if err != nil {
		http.Error(w, "invalid callback id", http.StatusBadRequest)
		return
	}
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.repo.Resolve(r.Context(), id, Status(req.Outcome), req.ResultNote)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "callback not found", http.StatusNotFound)
		case errors.Is(err, ErrUnknownStatus), errors.Is(err, ErrNotPending):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to resolve callback", "error", err, "id", id)
			http.Error(w, "failed to resolve callback", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
