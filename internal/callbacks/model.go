// Package callbacks manages the staff worklist of scheduled phone follow-ups:
// plain callbacks, recall calls, and referral thank-you calls.
package callbacks

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/internal/patients"
)

var (
	ErrNotFound      = errors.New("callbacks: callback not found")
	ErrUnknownType   = errors.New("callbacks: unknown callback type")
	ErrUnknownStatus = errors.New("callbacks: unknown callback status")
	ErrNotPending    = errors.New("callbacks: callback already resolved")
)

// Type distinguishes why the call is being made.
type Type string

const (
	TypeCallback Type = "callback"
	TypeRecall   Type = "recall"
	TypeThanks   Type = "thanks"
)

// Valid reports whether t is a known callback type.
func (t Type) Valid() bool {
	switch t {
	case TypeCallback, TypeRecall, TypeThanks:
		return true
	}
	return false
}

// Status is the lifecycle of a worklist item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusMissed    Status = "missed"
)

// Valid reports whether s is a known callback status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusMissed:
		return true
	}
	return false
}

// Callback is one scheduled call on the staff worklist.
type Callback struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	PatientName string     `json:"patient_name,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Note        string     `json:"note,omitempty"`
	ResultNote  string     `json:"result_note,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Overdue reports whether the item slipped: still pending with a scheduled
// date strictly before today. Same-day items are due, not overdue.
func (c *Callback) Overdue(today time.Time) bool {
	return c.Status == StatusPending && patients.DaysBetween(c.ScheduledAt, today) > 0
}
