package cti

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/internal/calllog"
	"github.com/catchallhq/dental-crm/internal/events"
	"github.com/catchallhq/dental-crm/internal/patients"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

// CallRepository persists the call log rows behind the CTI events.
type CallRepository interface {
	Create(ctx context.Context, c *calllog.CallLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*calllog.CallLog, error)
	EndCall(ctx context.Context, id uuid.UUID, endedAt time.Time, duration int, status calllog.CallStatus, transcript string) error
}

// PatientLookup recognizes callers for the screen pop.
type PatientLookup interface {
	FindByPhone(ctx context.Context, phone string) (*patients.Patient, error)
}

// Handler ingests call events from the phone system adapter.
type Handler struct {
	calls     CallRepository
	patients  PatientLookup
	publisher events.Publisher
	logger    *logging.Logger
}

// NewHandler creates a CTI ingestion handler.
func NewHandler(calls CallRepository, lookup PatientLookup, publisher events.Publisher, logger *logging.Logger) *Handler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{calls: calls, patients: lookup, publisher: publisher, logger: logger}
}

// IncomingRequest is the body for POST /cti/calls/incoming.
type IncomingRequest struct {
	Phone     string `json:"phone"`
	StartedAt string `json:"started_at,omitempty"`
}

// IncomingResponse carries the screen pop payload back to the adapter and,
// through the event channel, to every open dashboard.
type IncomingResponse struct {
	Call    *calllog.CallLog  `json:"call"`
	Patient *patients.Patient `json:"patient,omitempty"`
	Known   bool              `json:"known"`
}

// Incoming handles POST /cti/calls/incoming. It opens a call log row, looks
// the caller up by phone, and pushes the screen pop event.
func (h *Handler) Incoming(w http.ResponseWriter, r *http.Request) {
	var req IncomingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}

	startedAt := time.Now().UTC()
	if req.StartedAt != "" {
		t, err := time.Parse(time.RFC3339, req.StartedAt)
		if err != nil {
			http.Error(w, "invalid started_at, want RFC3339", http.StatusBadRequest)
			return
		}
		startedAt = t
	}

	call := &calllog.CallLog{
		Phone:     req.Phone,
		Direction: calllog.DirectionInbound,
		StartedAt: startedAt,
	}

	var patient *patients.Patient
	if h.patients != nil {
		p, err := h.patients.FindByPhone(r.Context(), req.Phone)
		switch {
		case err == nil:
			patient = p
			call.PatientID = &p.ID
		case errors.Is(err, patients.ErrNotFound):
			// Unknown caller; the dashboard shows a blank card.
		default:
			h.logger.Warn("caller lookup failed", "error", err, "phone", req.Phone)
		}
	}

	if err := h.calls.Create(r.Context(), call); err != nil {
		h.logger.Error("failed to create call log", "error", err)
		http.Error(w, "failed to record call", http.StatusInternalServerError)
		return
	}

	event := events.CTICallIncomingV1{
		EventID:   uuid.NewString(),
		Phone:     req.Phone,
		StartedAt: startedAt,
	}
	if patient != nil {
		event.PatientID = patient.ID.String()
		event.Name = patient.Name
		event.Status = string(patient.Status)
	}
	if err := h.publisher.Publish(r.Context(), events.ChannelCTICallIncoming, event); err != nil {
		h.logger.Warn("failed to publish incoming call event", "error", err)
	}

	writeJSON(w, http.StatusCreated, IncomingResponse{
		Call:    call,
		Patient: patient,
		Known:   patient != nil,
	})
}

// EndedRequest is the body for POST /cti/calls/ended.
type EndedRequest struct {
	CallLogID  string `json:"call_log_id"`
	Duration   int    `json:"duration_seconds"`
	Status     string `json:"status,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	EndedAt    string `json:"ended_at,omitempty"`
}

// Ended handles POST /cti/calls/ended.
func (h *Handler) Ended(w http.ResponseWriter, r *http.Request) {
	var req EndedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.CallLogID)
	if err != nil {
		http.Error(w, "invalid call_log_id", http.StatusBadRequest)
		return
	}

	endedAt := time.Now().UTC()
	if req.EndedAt != "" {
		t, err := time.Parse(time.RFC3339, req.EndedAt)
		if err != nil {
			http.Error(w, "invalid ended_at, want RFC3339", http.StatusBadRequest)
			return
		}
		endedAt = t
	}

	err = h.calls.EndCall(r.Context(), id, endedAt, req.Duration, calllog.CallStatus(req.Status), req.Transcript)
	if err != nil {
		if errors.Is(err, calllog.ErrNotFound) {
			http.Error(w, "call log not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to end call", "error", err, "id", id)
		http.Error(w, "failed to record call end", http.StatusInternalServerError)
		return
	}

	call, err := h.calls.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to reload call", "error", err, "id", id)
		http.Error(w, "failed to record call end", http.StatusInternalServerError)
		return
	}

	event := events.CTICallEndedV1{
		EventID:   uuid.NewString(),
		CallLogID: id.String(),
		Phone:     call.Phone,
		Duration:  req.Duration,
		EndedAt:   endedAt,
	}
	if err := h.publisher.Publish(r.Context(), events.ChannelCTICallEnded, event); err != nil {
		h.logger.Warn("failed to publish call ended event", "error", err)
	}

	writeJSON(w, http.StatusOK, call)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
