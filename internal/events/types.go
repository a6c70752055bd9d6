// Package events defines the typed payloads published after successful state
// changes, and the Redis pub/sub publisher that fans them out to the CTI
// dashboard panels.
package events

import "time"

// Channel names. Versioned so panel consumers can migrate independently.
const (
	ChannelPatientStatusChanged = "patient.status.changed.v1"
	ChannelCTICallIncoming      = "cti.call.incoming.v1"
	ChannelCTICallEnded         = "cti.call.ended.v1"
	ChannelRecallDispatchSent   = "recall.dispatch.sent.v1"
	ChannelAnalysisCompleted    = "callanalysis.completed.v1"
)

type PatientStatusChangedV1 struct {
	EventID    string    `json:"event_id"`
	PatientID  string    `json:"patient_id"`
	Name       string    `json:"name"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	EventDate  time.Time `json:"event_date"`
	ChangedBy  string    `json:"changed_by,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

type CTICallIncomingV1 struct {
	EventID   string    `json:"event_id"`
	Phone     string    `json:"phone"`
	PatientID string    `json:"patient_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Status    string    `json:"status,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

type CTICallEndedV1 struct {
	EventID   string    `json:"event_id"`
	CallLogID string    `json:"call_log_id"`
	Phone     string    `json:"phone"`
	Duration  int       `json:"duration_seconds"`
	EndedAt   time.Time `json:"ended_at"`
}

type RecallDispatchSentV1 struct {
	EventID   string    `json:"event_id"`
	PatientID string    `json:"patient_id"`
	Treatment string    `json:"treatment"`
	Timing    string    `json:"timing"`
	SentAt    time.Time `json:"sent_at"`
}

type CallAnalysisCompletedV1 struct {
	EventID        string    `json:"event_id"`
	CallLogID      string    `json:"call_log_id"`
	Phone          string    `json:"phone"`
	Classification string    `json:"classification"`
	Temperature    string    `json:"temperature"`
	Summary        string    `json:"summary"`
	Confidence     float64   `json:"confidence"`
	CompletedAt    time.Time `json:"completed_at"`
}
