// Package referrals tracks patient-to-patient introductions and the
// thank-you follow-ups they earn.
package referrals

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("referrals: referral not found")
	ErrSelfReferral  = errors.New("referrals: patient cannot refer themselves")
	ErrAlreadyExists = errors.New("referrals: referral already recorded")
	ErrThanksSent    = errors.New("referrals: thanks already sent")
)

// Referral links a referring patient to the patient they introduced.
type Referral struct {
	ID           uuid.UUID  `json:"id"`
	ReferrerID   uuid.UUID  `json:"referrer_id"`
	ReferrerName string     `json:"referrer_name,omitempty"`
	ReferredID   uuid.UUID  `json:"referred_id"`
	ReferredName string     `json:"referred_name,omitempty"`
	ThanksSent   bool       `json:"thanks_sent"`
	ThanksSentAt *time.Time `json:"thanks_sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ReferrerStat is one row of the referral leaderboard.
type ReferrerStat struct {
	PatientID uuid.UUID `json:"patient_id"`
	Name      string    `json:"name"`
	Count     int       `json:"count"`
}
