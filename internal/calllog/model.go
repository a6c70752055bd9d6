// Package calllog records phone calls from the clinic's CTI line and runs
// the AI analysis that classifies callers and summarizes consultations.
package calllog

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("calllog: call log not found")
	ErrNoTranscript    = errors.New("calllog: call has no transcript to analyze")
	ErrAnalysisRunning = errors.New("calllog: analysis already in progress")
)

// Direction of the call relative to the clinic.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CallStatus is the telephony outcome.
type CallStatus string

const (
	CallConnected CallStatus = "connected"
	CallMissed    CallStatus = "missed"
	CallBusy      CallStatus = "busy"
)

// AIStatus is the analysis lifecycle for one call.
type AIStatus string

const (
	AIPending    AIStatus = "pending"
	AIProcessing AIStatus = "processing"
	AICompleted  AIStatus = "completed"
	AIFailed     AIStatus = "failed"
)

// Classification buckets a caller the way the front desk does.
type Classification string

const (
	ClassNewPatient   Classification = "신환"
	ClassReturningNew Classification = "구신환"
	ClassExisting     Classification = "구환"
	ClassVendor       Classification = "거래처"
	ClassSpam         Classification = "스팸"
	ClassNoAnswer     Classification = "부재중"
	ClassOther        Classification = "기타"
)

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	switch c {
	case ClassNewPatient, ClassReturningNew, ClassExisting, ClassVendor, ClassSpam, ClassNoAnswer, ClassOther:
		return true
	}
	return false
}

// AIAnalysis is the structured result of analyzing one call.
type AIAnalysis struct {
	Classification Classification `json:"classification"`
	Temperature    string         `json:"temperature"` // hot | warm | cold
	Interest       string         `json:"interest,omitempty"`
	Summary        string         `json:"summary"`
	FollowUp       string         `json:"follow_up,omitempty"`
	Confidence     float64        `json:"confidence"`
	AnalyzedAt     time.Time      `json:"analyzed_at"`
}

// CallLog is one phone call on the clinic line.
type CallLog struct {
	ID           uuid.UUID   `json:"id"`
	Phone        string      `json:"phone"`
	PatientID    *uuid.UUID  `json:"patient_id,omitempty"`
	Direction    Direction   `json:"direction"`
	Status       CallStatus  `json:"status"`
	Duration     int         `json:"duration_seconds"`
	Transcript   string      `json:"transcript,omitempty"`
	RecordingURL string      `json:"recording_url,omitempty"`
	RecordingKey string      `json:"recording_key,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	EndedAt      *time.Time  `json:"ended_at,omitempty"`
	AIStatus     AIStatus    `json:"ai_status"`
	Analysis     *AIAnalysis `json:"ai_analysis,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
