package referrals

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/internal/callbacks"
	"github.com/catchallhq/dental-crm/pkg/logging"
)

// Repository defines the storage operations the handler needs.
type Repository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]Referral, error)
	ListPendingThanks(ctx context.Context) ([]Referral, error)
	TopReferrers(ctx context.Context, limit int) ([]ReferrerStat, error)
	MarkThanksSent(ctx context.Context, id uuid.UUID, sentAt time.Time) (*Referral, error)
}

// ThanksSender delivers the thank-you text to the referring patient.
type ThanksSender interface {
	SendReferralThanks(ctx context.Context, to, referrerName, referredName string) error
}

// PhoneLookup resolves the referrer's phone number for the thanks message.
type PhoneLookup interface {
	PhoneByID(ctx context.Context, id uuid.UUID) (string, error)
}

// CallbackCreator records the thank-you call on the staff worklist.
type CallbackCreator interface {
	Create(ctx context.Context, c *callbacks.Callback) error
}

// Handler handles HTTP requests for referrals.
type Handler struct {
	repo      Repository
	sender    ThanksSender
	phones    PhoneLookup
	callbacks CallbackCreator
	logger    *logging.Logger
}

// NewHandler creates a referrals handler.
func NewHandler(repo Repository, sender ThanksSender, phones PhoneLookup, cb CallbackCreator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, sender: sender, phones: phones, callbacks: cb, logger: logger}
}

// CreateRequest is the body for POST /referrals.
type CreateRequest struct {
	ReferrerID string `json:"referrer_id"`
	ReferredID string `json:"referred_id"`
}

// Create handles POST /referrals.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	referrerID, err := uuid.Parse(req.ReferrerID)
	if err != nil {
		http.Error(w, "invalid referrer_id", http.StatusBadRequest)
		return
	}
	referredID, err := uuid.Parse(req.ReferredID)
	if err != nil {
		http.Error(w, "invalid referred_id", http.StatusBadRequest)
		return
	}

	ref := &Referral{ReferrerID: referrerID, ReferredID: referredID}
	if err := h.repo.Create(r.Context(), ref); err != nil {
		switch {
		case errors.Is(err, ErrSelfReferral):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrAlreadyExists):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("failed to create referral", "error", err)
			http.Error(w, "failed to create referral", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

// List handles GET /referrals. With referrer_id it lists that patient's
// referrals; with pending_thanks=true it lists referrals owing a thank-you.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if raw := q.Get("referrer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid referrer_id", http.StatusBadRequest)
			return
		}
		list, err := h.repo.ListByReferrer(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to list referrals", "error", err)
			http.Error(w, "failed to list referrals", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"referrals": list, "count": len(list)})
		return
	}

	if q.Get("pending_thanks") == "true" {
		list, err := h.repo.ListPendingThanks(r.Context())
		if err != nil {
			h.logger.Error("failed to list pending thanks", "error", err)
			http.Error(w, "failed to list referrals", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"referrals": list, "count": len(list)})
		return
	}

	http.Error(w, "referrer_id or pending_thanks=true required", http.StatusBadRequest)
}

// Top handles GET /referrals/top.
func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	stats, err := h.repo.TopReferrers(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load top referrers", "error", err)
		http.Error(w, "failed to load referrers", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"referrers": stats})
}

// SendThanks handles POST /referrals/{id}/thanks: texts the referrer, marks
// the referral thanked, and drops a thanks item on the call worklist.
func (h *Handler) SendThanks(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "referralID"))
	if err != nil {
		http.Error(w, "invalid referral id", http.StatusBadRequest)
		return
	}

	ref, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "referral not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load referral", "error", err, "id", id)
		http.Error(w, "failed to send thanks", http.StatusInternalServerError)
		return
	}
	if ref.ThanksSent {
		http.Error(w, ErrThanksSent.Error(), http.StatusBadRequest)
		return
	}

	if h.sender != nil && h.phones != nil {
		phone, err := h.phones.PhoneByID(r.Context(), ref.ReferrerID)
		if err != nil {
			h.logger.Error("failed to resolve referrer phone", "error", err, "id", ref.ReferrerID)
			http.Error(w, "failed to send thanks", http.StatusInternalServerError)
			return
		}
		if err := h.sender.SendReferralThanks(r.Context(), phone, ref.ReferrerName, ref.ReferredName); err != nil {
			h.logger.Error("failed to send thanks message", "error", err, "id", id)
			http.Error(w, "failed to send thanks", http.StatusInternalServerError)
			return
		}
	}

	updated, err := h.repo.MarkThanksSent(r.Context(), id, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrThanksSent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to mark thanks sent", "error", err, "id", id)
		http.Error(w, "failed to send thanks", http.StatusInternalServerError)
		return
	}

	if h.callbacks != nil {
		cb := &callbacks.Callback{
			PatientID:   ref.ReferrerID,
			Type:        callbacks.TypeThanks,
			ScheduledAt: time.Now(),
			Note:        "소개 감사 인사: " + ref.ReferredName + "님 소개",
		}
		if err := h.callbacks.Create(r.Context(), cb); err != nil {
			h.logger.Warn("failed to create thanks callback", "error", err, "referral_id", id)
		}
	}

	h.logger.Info("referral thanks sent", "referral_id", id, "referrer_id", ref.ReferrerID)
	writeJSON(w, http.StatusOK, updated)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
