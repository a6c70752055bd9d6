package patients

import "time"

// TransitionOptions carries the caller-supplied context for a transition.
type TransitionOptions struct {
	// Reason is required when the target status is closed.
	Reason *ClosedReason
	// Reactivation marks the transition as a return from closed. It changes
	// no schema; it only suppresses the reservation-type nextAction side
	// effect so a reactivated patient starts with a clean schedule.
	Reactivation bool
}

// ApplyTransition moves the patient to newStatus as of eventDate, appends the
// history entry, and applies the per-status side effects:
//
//   - reservation-type targets (reserved, treatmentBooked) set
//     nextAction/nextActionDate to the upcoming event
//   - every other target clears both
//   - treatment sets treatmentStartDate
//   - closed stores the reason
//
// Transitions are deliberately unordered: staff fix mistakes by moving
// patients backward, so any status other than the current one is legal.
// The patient value is mutated in place; callers persist it atomically
// together with the returned history entry.
func ApplyTransition(p *Patient, newStatus Status, eventDate time.Time, changedBy string, opts TransitionOptions, now time.Time) (HistoryEntry, error) {
	if !newStatus.Valid() {
		return HistoryEntry{}, ErrUnknownStatus
	}
	if newStatus == p.Status {
		return HistoryEntry{}, ErrSameStatus
	}
	if newStatus == StatusClosed {
		if opts.Reason == nil || !opts.Reason.Valid() {
			return HistoryEntry{}, ErrUnknownReason
		}
	}

	entry := HistoryEntry{
		PatientID: p.ID,
		From:      p.Status,
		To:        newStatus,
		EventDate: eventDate,
		ChangedAt: now,
		ChangedBy: changedBy,
	}

	switch {
	case newStatus == StatusClosed:
		entry.Reason = opts.Reason
		p.ClosedReason = opts.Reason
		p.NextAction = nil
		p.NextActionDate = nil
	case newStatus.IsReservation() && !opts.Reactivation:
		label := newStatus.Label()
		p.NextAction = &label
		date := eventDate
		p.NextActionDate = &date
	default:
		p.NextAction = nil
		p.NextActionDate = nil
	}

	if newStatus == StatusTreatment {
		date := eventDate
		p.TreatmentStartDate = &date
	}
	if p.Status == StatusClosed && newStatus != StatusClosed {
		p.ClosedReason = nil
	}

	p.Status = newStatus
	p.StatusChangedAt = now
	p.UpdatedAt = now
	p.History = append(p.History, entry)

	return entry, nil
}

// ReactivationTarget returns the status a closed patient should return to:
// the from side of the most recent entry that closed them. When the history
// holds no closing entry the patient re-enters the funnel at consulting.
func ReactivationTarget(history []HistoryEntry) Status {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].To == StatusClosed {
			return history[i].From
		}
	}
	return StatusConsulting
}

// Reactivate returns a closed patient to the status they held before
// closing. The closing entry keeps its reason untouched; the reactivation
// is an ordinary history entry from closed to the target.
func Reactivate(p *Patient, changedBy string, now time.Time) (HistoryEntry, error) {
	target := ReactivationTarget(p.History)
	return ApplyTransition(p, target, now, changedBy, TransitionOptions{Reactivation: true}, now)
}
