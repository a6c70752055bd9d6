package patients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/internal/events"
	httpmiddleware "github.com/catchallhq/dental-crm/internal/http/middleware"
	"github.com/catchallhq/dental-crm/internal/observability/metrics"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

// Repository defines the storage operations the handler needs.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, filter ListFilter) ([]Patient, error)
	ListActive(ctx context.Context) ([]Patient, error)
	Transition(ctx context.Context, id uuid.UUID, newStatus Status, eventDate time.Time, changedBy string, opts TransitionOptions) (*Patient, error)
	Reactivate(ctx context.Context, id uuid.UUID, changedBy string) (*Patient, error)
	UpdateFields(ctx context.Context, id uuid.UUID, u FieldUpdates) error
}

// UrgencyInvalidator drops the cached urgency snapshot after a funnel change
// so the dashboard counters refresh before the cache TTL runs out.
type UrgencyInvalidator interface {
	InvalidateUrgency(ctx context.Context)
}

// Handler handles HTTP requests for the patient funnel.
type Handler struct {
	repo      Repository
	publisher events.Publisher
	metrics   *metrics.CRMMetrics
	urgency   UrgencyInvalidator
	logger    *logging.Logger
}

// NewHandler creates a patients handler. urgency may be nil when no snapshot
// cache is configured.
func NewHandler(repo Repository, publisher events.Publisher, m *metrics.CRMMetrics, urgency UrgencyInvalidator, logger *logging.Logger) *Handler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, publisher: publisher, metrics: m, urgency: urgency, logger: logger}
}

// CreateRequest is the body for POST /patients.
type CreateRequest struct {
	Name        string   `json:"name"`
	Phone       string   `json:"phone"`
	Gender      string   `json:"gender"`
	Age         *int     `json:"age"`
	Region      string   `json:"region"`
	Interest    string   `json:"interest"`
	Source      string   `json:"source"`
	Memo        string   `json:"memo"`
	Tags        []string `json:"tags"`
	Temperature string   `json:"temperature"`
}

// Create handles POST /patients.
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

	p := &Patient{
		Name:        req.Name,
		Phone:       req.Phone,
		Gender:      req.Gender,
		Age:         req.Age,
		Region:      req.Region,
		Interest:    req.Interest,
		Source:      req.Source,
		Memo:        req.Memo,
		Tags:        req.Tags,
		Temperature: Temperature(req.Temperature),
	}
	if err := h.repo.Create(r.Context(), p); err != nil {
		h.logger.Error("failed to create patient", "error", err)
		http.Error(w, "failed to create patient", http.StatusInternalServerError)
		return
	}

	h.logger.Info("patient created", "id", p.ID, "phone", p.Phone)
	writeJSON(w, http.StatusCreated, p)
}

// ListResponse is the response for GET /patients.
type ListResponse struct {
	Patients []ListItem  `json:"patients"`
	Count    int         `json:"count"`
	Urgent   UrgentStats `json:"urgent"`
}

// ListItem decorates a patient with the derived worklist fields.
type ListItem struct {
	Patient
	DaysInStatus int     `json:"days_in_status"`
	Urgency      Urgency `json:"urgency"`
	Emphasis     string  `json:"emphasis,omitempty"`
	Schedule     string  `json:"schedule"`
}

// List handles GET /patients. Supports status, search, urgency, limit and
// offset query parameters; always returns the urgent summary tallies.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: 50}
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		if !Status(status).Valid() {
			http.Error(w, "unknown status filter", http.StatusBadRequest)
			return
		}
		filter.Status = Status(status)
	}
	filter.Search = q.Get("search")
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit <= 200 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}
	urgencyFilter := Urgency(q.Get("urgency"))

	list, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list patients", "error", err)
		http.Error(w, "failed to list patients", http.StatusInternalServerError)
		return
	}

	active, err := h.repo.ListActive(r.Context())
	if err != nil {
		h.logger.Error("failed to load active patients", "error", err)
		http.Error(w, "failed to list patients", http.StatusInternalServerError)
		return
	}

	today := time.Now()
	items := make([]ListItem, 0, len(list))
	for i := range list {
		p := &list[i]
		item := ListItem{
			Patient:      *p,
			DaysInStatus: p.DaysInStatus(today),
			Urgency:      Classify(p, today),
			Emphasis:     Emphasis(p, today),
			Schedule:     ScheduleDisplay(p, today),
		}
		if urgencyFilter != "" && item.Urgency != urgencyFilter {
			continue
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Patients: items,
		Count:    len(items),
		Urgent:   TallyUrgent(active, today),
	})
}

// Get handles GET /patients/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch patient", "error", err, "id", id)
		http.Error(w, "failed to fetch patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// TransitionRequest is the body for POST /patients/{id}/status.
type TransitionRequest struct {
	Status       string `json:"status"`
	EventDate    string `json:"event_date"` // YYYY-MM-DD; defaults to today
	ClosedReason string `json:"closed_reason,omitempty"`
}

// Transition handles POST /patients/{id}/status.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	eventDate := time.Now().UTC()
	if req.EventDate != "" {
		parsed, err := time.Parse(time.DateOnly, req.EventDate)
		if err != nil {
			http.Error(w, "invalid event_date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		eventDate = parsed
	}

	opts := TransitionOptions{}
	if req.ClosedReason != "" {
		reason := ClosedReason(req.ClosedReason)
		opts.Reason = &reason
	}

	changedBy := httpmiddleware.StaffNameFromContext(r.Context())
	p, err := h.repo.Transition(r.Context(), id, Status(req.Status), eventDate, changedBy, opts)
	if err != nil {
		h.writeTransitionError(w, err, id)
		return
	}

	h.metrics.ObserveTransition(string(p.History[len(p.History)-1].From), string(p.Status))
	h.publishStatusChanged(r.Context(), p, eventDate, changedBy)
	h.invalidateUrgency(r.Context())

	h.logger.Info("patient status changed",
		"id", p.ID, "to", p.Status, "changed_by", changedBy)
	writeJSON(w, http.StatusOK, p)
}

// Reactivate handles POST /patients/{id}/reactivate.
func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	changedBy := httpmiddleware.StaffNameFromContext(r.Context())
	p, err := h.repo.Reactivate(r.Context(), id, changedBy)
	if err != nil {
		h.writeTransitionError(w, err, id)
		return
	}

	h.metrics.ObserveTransition(string(StatusClosed), string(p.Status))
	h.publishStatusChanged(r.Context(), p, p.StatusChangedAt, changedBy)
	h.invalidateUrgency(r.Context())

	h.logger.Info("patient reactivated", "id", p.ID, "to", p.Status, "changed_by", changedBy)
	writeJSON(w, http.StatusOK, p)
}

// UpdateRequest is the body for PATCH /patients/{id}. All fields optional.
type UpdateRequest struct {
	Name            *string  `json:"name"`
	Phone           *string  `json:"phone"`
	Gender          *string  `json:"gender"`
	Age             *int     `json:"age"`
	Region          *string  `json:"region"`
	Temperature     *string  `json:"temperature"`
	Interest        *string  `json:"interest"`
	Memo            *string  `json:"memo"`
	Tags            []string `json:"tags"`
	EstimatedAmount *int64   `json:"estimated_amount"`
	ActualAmount    *int64   `json:"actual_amount"`
	PaymentStatus   *string  `json:"payment_status"`
	TreatmentNote   *string  `json:"treatment_note"`
}

// Update handles PATCH /patients/{id} for non-status staff edits.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updates := FieldUpdates{
		Name:            req.Name,
		Phone:           req.Phone,
		Gender:          req.Gender,
		Age:             req.Age,
		Region:          req.Region,
		Interest:        req.Interest,
		Memo:            req.Memo,
		Tags:            req.Tags,
		EstimatedAmount: req.EstimatedAmount,
		ActualAmount:    req.ActualAmount,
		TreatmentNote:   req.TreatmentNote,
	}
	if req.Temperature != nil {
		temp := Temperature(*req.Temperature)
		updates.Temperature = &temp
	}
	if req.PaymentStatus != nil {
		pay := PaymentStatus(*req.PaymentStatus)
		updates.PaymentStatus = &pay
	}

	if err := h.repo.UpdateFields(r.Context(), id, updates); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to update patient", "error", err, "id", id)
		http.Error(w, "failed to update patient", http.StatusInternalServerError)
		return
	}

	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to reload patient", "error", err, "id", id)
		http.Error(w, "failed to fetch patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) publishStatusChanged(ctx context.Context, p *Patient, eventDate time.Time, changedBy string) {
	last := p.History[len(p.History)-1]
	err := h.publisher.Publish(ctx, events.ChannelPatientStatusChanged, events.PatientStatusChangedV1{
		EventID:    uuid.NewString(),
		PatientID:  p.ID.String(),
		Name:       p.Name,
		FromStatus: string(last.From),
		ToStatus:   string(last.To),
		EventDate:  eventDate,
		ChangedBy:  changedBy,
		ChangedAt:  last.ChangedAt,
	})
	if err != nil {
		// The transition already committed; a lost event only affects the
		// live panel.
		h.logger.Warn("failed to publish status change event", "error", err, "id", p.ID)
	}
}

func (h *Handler) invalidateUrgency(ctx context.Context) {
	if h.urgency != nil {
		h.urgency.InvalidateUrgency(ctx)
	}
}

func (h *Handler) writeTransitionError(w http.ResponseWriter, err error, id uuid.UUID) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "patient not found", http.StatusNotFound)
	case errors.Is(err, ErrSameStatus), errors.Is(err, ErrUnknownStatus), errors.Is(err, ErrUnknownReason):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrVersionConflict):
		http.Error(w, "patient was modified concurrently, retry", http.StatusConflict)
	default:
		h.logger.Error("transition failed", "error", err, "id", id)
		http.Error(w, "transition failed", http.StatusInternalServerError)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
