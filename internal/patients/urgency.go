package patients

import (
	"fmt"
	"time"
)

// Urgency buckets a patient for the operational worklists.
type Urgency string

const (
	// UrgencyNoShow means the scheduled event date has passed.
	UrgencyNoShow Urgency = "noshow"
	// UrgencyToday means the scheduled event is today.
	UrgencyToday Urgency = "today"
	// UrgencyOverdue means the patient sat in a status past its danger threshold.
	UrgencyOverdue Urgency = "overdue"
	UrgencyNormal  Urgency = "normal"
)

// Threshold holds the stay-duration limits for one status, in days.
// Warning drives display emphasis only; the overdue bucket gates at Danger.
type Threshold struct {
	Warning int
	Danger  int
}

// dayThresholds maps each status to its stay-duration limits. Reservation
// statuses carry no threshold: they are judged by nextActionDate instead.
// completed and closed are never urgent.
var dayThresholds = map[Status]Threshold{
	StatusConsulting:      {Warning: 3, Danger: 7},
	StatusReserved:        {},
	StatusVisited:         {Warning: 3, Danger: 7},
	StatusTreatmentBooked: {},
	StatusTreatment:       {Warning: 14, Danger: 30},
	StatusCompleted:       {},
	StatusFollowup:        {Warning: 30, Danger: 90},
	StatusClosed:          {},
}

// ThresholdFor returns the stay-duration threshold for a status.
func ThresholdFor(s Status) Threshold {
	return dayThresholds[s]
}

// DaysBetween returns to - from in whole days, comparing calendar dates only.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// StatusDate returns the date the patient's stay in the current status is
// measured from. treatment measures from the treatment start date when known.
func (p *Patient) StatusDate() time.Time {
	if p.Status == StatusTreatment && p.TreatmentStartDate != nil {
		return *p.TreatmentStartDate
	}
	if !p.StatusChangedAt.IsZero() {
		return p.StatusChangedAt
	}
	return p.CreatedAt
}

// DaysInStatus returns how many whole days the patient has sat in the
// current status as of today.
func (p *Patient) DaysInStatus(today time.Time) int {
	return DaysBetween(p.StatusDate(), today)
}

// Classify buckets a patient by urgency as of today.
//
// With a nextActionDate the scheduled event governs: past is noshow, today
// is today, future is normal. Without one the stay duration is compared to
// the status's danger threshold.
func Classify(p *Patient, today time.Time) Urgency {
	if p.NextActionDate != nil {
		diff := DaysBetween(today, *p.NextActionDate)
		if diff < 0 {
			return UrgencyNoShow
		}
		if diff == 0 {
			return UrgencyToday
		}
		return UrgencyNormal
	}

	threshold := dayThresholds[p.Status]
	if threshold.Danger > 0 && p.DaysInStatus(today) >= threshold.Danger {
		return UrgencyOverdue
	}
	return UrgencyNormal
}

// Emphasis grades how strongly a row should be highlighted: "danger",
// "warning", "near" (event within 3 days), or "".
func Emphasis(p *Patient, today time.Time) string {
	if p.NextActionDate != nil {
		diff := DaysBetween(today, *p.NextActionDate)
		switch {
		case diff < 0:
			return "danger"
		case diff == 0:
			return "warning"
		case diff <= 3:
			return "near"
		}
		return ""
	}

	threshold := dayThresholds[p.Status]
	days := p.DaysInStatus(today)
	switch {
	case threshold.Danger > 0 && days >= threshold.Danger:
		return "danger"
	case threshold.Warning > 0 && days >= threshold.Warning:
		return "warning"
	}
	return ""
}

// ScheduleDisplay renders the worklist schedule column: the next action with
// a D-day countdown when one is scheduled, otherwise the stay duration.
func ScheduleDisplay(p *Patient, today time.Time) string {
	if p.NextActionDate != nil {
		action := ""
		if p.NextAction != nil {
			action = *p.NextAction + " "
		}
		diff := DaysBetween(today, *p.NextActionDate)
		switch {
		case diff > 0:
			return fmt.Sprintf("%sD-%d", action, diff)
		case diff == 0:
			return action + "D-Day"
		default:
			return fmt.Sprintf("%s+%d일", action, -diff)
		}
	}
	if p.NextAction != nil {
		return *p.NextAction
	}
	return fmt.Sprintf("%d일째", p.DaysInStatus(today))
}

// UrgentStats are the summary-card tallies over the active patient set.
type UrgentStats struct {
	NoShow  int `json:"noshow"`
	Today   int `json:"today"`
	Overdue int `json:"overdue"`
}

// TallyUrgent counts urgency buckets over the given patients. Closed and
// completed patients are skipped; they are out of active management.
func TallyUrgent(list []Patient, today time.Time) UrgentStats {
	var stats UrgentStats
	for i := range list {
		p := &list[i]
		if p.Status.IsTerminal() {
			continue
		}
		switch Classify(p, today) {
		case UrgencyNoShow:
			stats.NoShow++
		case UrgencyToday:
			stats.Today++
		case UrgencyOverdue:
			stats.Overdue++
		}
	}
	return stats
}
