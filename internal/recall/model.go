// Package recall implements the post-treatment recall engine: per-treatment
// timing rules, idempotent dispatch scheduling, outreach sending, and the
// no-response escalation that puts patients back on the call worklist.
package recall

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/internal/patients"
)

var (
	ErrRuleNotFound     = errors.New("recall: rule not found")
	ErrDispatchNotFound = errors.New("recall: dispatch not found")
	ErrUnknownTiming    = errors.New("recall: unrecognized timing label")
	ErrNotBookable      = errors.New("recall: dispatch not in a bookable status")
)

// DispatchStatus is the lifecycle of one recall outreach.
type DispatchStatus string

const (
	// DispatchPending is scheduled but not yet delivered.
	DispatchPending DispatchStatus = "pending"
	// DispatchSent means the outreach message went out.
	DispatchSent DispatchStatus = "sent"
	// DispatchBooked means the patient responded with a booking.
	DispatchBooked DispatchStatus = "booked"
	// DispatchCallNeeded means no response arrived within the response
	// window; staff should call instead.
	DispatchCallNeeded DispatchStatus = "call-needed"
)

// Rule is one step of a treatment's recall sequence.
type Rule struct {
	ID        uuid.UUID `json:"id"`
	Treatment string    `json:"treatment"`
	Timing    string    `json:"timing"` // human label, e.g. "1개월 후"
	Template  string    `json:"template"`
	Enabled   bool      `json:"enabled"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dispatch is one scheduled recall outreach for a patient. The
// (patient, treatment, timing) triple is unique: re-resolving a schedule
// never duplicates an existing dispatch.
type Dispatch struct {
	ID          uuid.UUID      `json:"id"`
	PatientID   uuid.UUID      `json:"patient_id"`
	PatientName string         `json:"patient_name,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Treatment   string         `json:"treatment"`
	Timing      string         `json:"timing"`
	Message     string         `json:"message"`
	DueDate     time.Time      `json:"due_date"`
	Status      DispatchStatus `json:"status"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	BookedAt    *time.Time     `json:"booked_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DaysPassed returns whole days since the outreach went out, 0 when unsent.
// Derived on read, never stored.
func (d *Dispatch) DaysPassed(today time.Time) int {
	if d.SentAt == nil {
		return 0
	}
	days := patients.DaysBetween(*d.SentAt, today)
	if days < 0 {
		return 0
	}
	return days
}

// NeedsEscalation reports whether a sent dispatch has waited past the
// response window without a booking.
func (d *Dispatch) NeedsEscalation(today time.Time, responseDays int) bool {
	return d.Status == DispatchSent && d.SentAt != nil &&
		patients.DaysBetween(*d.SentAt, today) >= responseDays
}
