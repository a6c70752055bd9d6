// Package patients implements the patient funnel: the status model,
// transition recording with an append-only history, and the urgency
// classification that drives the operational worklists.
package patients

import (
	"time"

	"github.com/google/uuid"
)

// Status is a patient's position in the consultation-to-followup funnel.
// closed sits outside the linear order and is reachable from any status.
type Status string

const (
	StatusConsulting      Status = "consulting"
	StatusReserved        Status = "reserved"
	StatusVisited         Status = "visited"
	StatusTreatmentBooked Status = "treatmentBooked"
	StatusTreatment       Status = "treatment"
	StatusCompleted       Status = "completed"
	StatusFollowup        Status = "followup"
	StatusClosed          Status = "closed"
)

// FunnelOrder lists the funnel statuses in progression order, closed excluded.
var FunnelOrder = []Status{
	StatusConsulting,
	StatusReserved,
	StatusVisited,
	StatusTreatmentBooked,
	StatusTreatment,
	StatusCompleted,
	StatusFollowup,
}

var statusLabels = map[Status]string{
	StatusConsulting:      "전화상담",
	StatusReserved:        "내원예약",
	StatusVisited:         "내원완료",
	StatusTreatmentBooked: "치료예약",
	StatusTreatment:       "치료중",
	StatusCompleted:       "치료완료",
	StatusFollowup:        "사후관리",
	StatusClosed:          "종결",
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the Korean display label for the status.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// IsReservation reports whether entering this status schedules a future
// event (and therefore carries nextAction/nextActionDate).
func (s Status) IsReservation() bool {
	return s == StatusReserved || s == StatusTreatmentBooked
}

// IsTerminal reports whether the status ends active management.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCompleted
}

// ClosedReason is the fixed enumeration recorded when a patient is closed.
type ClosedReason string

const (
	ClosedRefusedContact ClosedReason = "연락거부"
	ClosedOtherClinic    ClosedReason = "타병원이동"
	ClosedNotInterested  ClosedReason = "관심없음"
	ClosedUnreachable    ClosedReason = "연락두절"
	ClosedOther          ClosedReason = "기타"
)

// Valid reports whether r is a known closed reason.
func (r ClosedReason) Valid() bool {
	switch r {
	case ClosedRefusedContact, ClosedOtherClinic, ClosedNotInterested, ClosedUnreachable, ClosedOther:
		return true
	}
	return false
}

// Temperature grades how likely the patient is to convert.
type Temperature string

const (
	TemperatureHot  Temperature = "hot"
	TemperatureWarm Temperature = "warm"
	TemperatureCold Temperature = "cold"
)

// PaymentStatus tracks settlement of the treatment amount. It is independent
// of funnel status and edited freely by staff.
type PaymentStatus string

const (
	PaymentNone      PaymentStatus = "none"
	PaymentPartial   PaymentStatus = "partial"
	PaymentCompleted PaymentStatus = "completed"
)

// HistoryEntry is one immutable record in a patient's status history.
// Entries are only ever appended; reactivation appends a new entry rather
// than touching the closing one.
type HistoryEntry struct {
	ID        uuid.UUID     `json:"id"`
	PatientID uuid.UUID     `json:"patient_id"`
	From      Status        `json:"from"`
	To        Status        `json:"to"`
	EventDate time.Time     `json:"event_date"`
	ChangedAt time.Time     `json:"changed_at"`
	ChangedBy string        `json:"changed_by,omitempty"`
	Reason    *ClosedReason `json:"reason,omitempty"`
}

// Patient is the unit of mutation: status fields, financial fields and
// demographics live on one row updated atomically per transition.
type Patient struct {
	ID                 uuid.UUID      `json:"id"`
	Name               string         `json:"name"`
	Phone              string         `json:"phone"`
	Gender             string         `json:"gender,omitempty"`
	Age                *int           `json:"age,omitempty"`
	Region             string         `json:"region,omitempty"`
	Status             Status         `json:"status"`
	StatusChangedAt    time.Time      `json:"status_changed_at"`
	Temperature        Temperature    `json:"temperature"`
	Interest           string         `json:"interest,omitempty"`
	Source             string         `json:"source,omitempty"`
	NextAction         *string        `json:"next_action,omitempty"`
	NextActionDate     *time.Time     `json:"next_action_date,omitempty"`
	TreatmentStartDate *time.Time     `json:"treatment_start_date,omitempty"`
	ClosedReason       *ClosedReason  `json:"closed_reason,omitempty"`
	Memo               string         `json:"memo,omitempty"`
	Tags               []string       `json:"tags,omitempty"`
	EstimatedAmount    int64          `json:"estimated_amount"`
	ActualAmount       int64          `json:"actual_amount"`
	PaymentStatus      PaymentStatus  `json:"payment_status"`
	TreatmentNote      string         `json:"treatment_note,omitempty"`
	History            []HistoryEntry `json:"status_history,omitempty"`
	Version            int64          `json:"version"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}
