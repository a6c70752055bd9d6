package calllog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/pkg/logging"
)

// HandlerRepository defines the storage operations the handler needs.
type HandlerRepository interface {
	Create(ctx context.Context, c *CallLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*CallLog, error)
	List(ctx context.Context, f ListFilter) ([]CallLog, error)
	LinkPatient(ctx context.Context, id, patientID uuid.UUID) error
	AttachRecording(ctx context.Context, id uuid.UUID, url, key string) error
}

// AnalysisRunner runs the AI pipeline for one call.
type AnalysisRunner interface {
	Analyze(ctx context.Context, callID uuid.UUID) (*AIAnalysis, error)
}

// RecordingStorer archives raw call audio.
type RecordingStorer interface {
	Store(ctx context.Context, callID uuid.UUID, startedAt time.Time, payload []byte, contentType string) (string, error)
	URL(key string) string
}

// Handler handles HTTP requests for call logs.
type Handler struct {
	repo     HandlerRepository
	analyzer AnalysisRunner
	archive  RecordingStorer
	logger   *logging.Logger
}

// NewHandler creates a call log handler. archive may be nil when recording
// storage is not configured.
func NewHandler(repo HandlerRepository, analyzer AnalysisRunner, archive RecordingStorer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, analyzer: analyzer, archive: archive, logger: logger}
}

// CreateRequest is the body for POST /calls.
type CreateRequest struct {
	Phone      string `json:"phone"`
	PatientID  string `json:"patient_id,omitempty"`
	Direction  string `json:"direction,omitempty"`
	Status     string `json:"status,omitempty"`
	Duration   int    `json:"duration_seconds,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	EndedAt    string `json:"ended_at,omitempty"`
}

// Create handles POST /calls.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}

	call := &CallLog{
		Phone:      req.Phone,
		Direction:  Direction(req.Direction),
		Status:     CallStatus(req.Status),
		Duration:   req.Duration,
		Transcript: req.Transcript,
		StartedAt:  time.Now().UTC(),
	}
	if req.PatientID != "" {
		id, err := uuid.Parse(req.PatientID)
		if err != nil {
			http.Error(w, "invalid patient_id", http.StatusBadRequest)
			return
		}
		call.PatientID = &id
	}
	if req.StartedAt != "" {
		t, err := time.Parse(time.RFC3339, req.StartedAt)
		if err != nil {
			http.Error(w, "invalid started_at, want RFC3339", http.StatusBadRequest)
			return
		}
		call.StartedAt = t
	}
	if req.EndedAt != "" {
		t, err := time.Parse(time.RFC3339, req.EndedAt)
		if err != nil {
			http.Error(w, "invalid ended_at, want RFC3339", http.StatusBadRequest)
			return
		}
		call.EndedAt = &t
	}

	if err := h.repo.Create(r.Context(), call); err != nil {
		h.logger.Error("failed to create call log", "error", err)
		http.Error(w, "failed to create call log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

// List handles GET /calls with phone, patient_id, ai_status and date filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{
		Phone:    q.Get("phone"),
		AIStatus: AIStatus(q.Get("ai_status")),
	}
	if raw := q.Get("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid patient_id", http.StatusBadRequest)
			return
		}
		f.PatientID = &id
	}
	if raw := q.Get("date"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		f.Date = &day
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	calls, err := h.repo.List(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list call logs", "error", err)
		http.Error(w, "failed to list call logs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls, "count": len(calls)})
}

// Get handles GET /calls/{callID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	call, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "call log not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load call log", "error", err, "id", id)
		http.Error(w, "failed to load call log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// Analyze handles POST /calls/{callID}/analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	analysis, err := h.analyzer.Analyze(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "call log not found", http.StatusNotFound)
		case errors.Is(err, ErrNoTranscript):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrAnalysisRunning):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("call analysis failed", "error", err, "id", id)
			http.Error(w, "call analysis failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// LinkPatientRequest is the body for POST /calls/{callID}/patient.
type LinkPatientRequest struct {
	PatientID string `json:"patient_id"`
}

// LinkPatient handles POST /calls/{callID}/patient.
func (h *Handler) LinkPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req LinkPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		http.Error(w, "invalid patient_id", http.StatusBadRequest)
		return
	}
	if err := h.repo.LinkPatient(r.Context(), id, patientID); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "call log not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to link patient", "error", err, "id", id)
		http.Error(w, "failed to link patient", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// maxRecordingBytes caps recording uploads at 32 MiB.
const maxRecordingBytes = 32 << 20

// UploadRecording handles POST /calls/{callID}/recording. The body is the
// raw audio; the Content-Type header is stored with the object.
func (h *Handler) UploadRecording(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if h.archive == nil {
		http.Error(w, "recording storage not configured", http.StatusServiceUnavailable)
		return
	}

	call, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "call log not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load call log", "error", err, "id", id)
		http.Error(w, "failed to load call log", http.StatusInternalServerError)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordingBytes))
	if err != nil {
		http.Error(w, "failed to read recording body", http.StatusBadRequest)
		return
	}
	if len(payload) == 0 {
		http.Error(w, "recording body is empty", http.StatusBadRequest)
		return
	}

	key, err := h.archive.Store(r.Context(), call.ID, call.StartedAt, payload, r.Header.Get("Content-Type"))
	if err != nil {
		h.logger.Error("failed to archive recording", "error", err, "id", id)
		http.Error(w, "failed to archive recording", http.StatusInternalServerError)
		return
	}
	url := h.archive.URL(key)
	if err := h.repo.AttachRecording(r.Context(), id, url, key); err != nil {
		h.logger.Error("failed to attach recording", "error", err, "id", id)
		http.Error(w, "failed to attach recording", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"recording_url": url, "recording_key": key})
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "callID"))
	if err != nil {
		http.Error(w, "invalid call id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
