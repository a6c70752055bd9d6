package recall

import (
	"time"

	"github.com/google/uuid"

	"github.com/catchallhq/dental-crm/internal/patients"
)

// ScheduleInput describes one completed treatment to resolve recalls for.
type ScheduleInput struct {
	PatientID   uuid.UUID
	PatientName string
	Treatment   string
	LastVisit   time.Time
}

// Resolve computes the dispatches that should exist now: one per enabled rule
// whose due date (lastVisit + offset) has arrived, excluding timings already
// dispatched. Disabled rules and unparseable timings yield nothing. Calling
// Resolve repeatedly with the same inputs is idempotent.
func Resolve(in ScheduleInput, rules []Rule, existingTimings map[string]bool, today time.Time) []Dispatch {
	var out []Dispatch
	for _, rule := range rules {
		if !rule.Enabled || rule.Treatment != in.Treatment {
			continue
		}
		if existingTimings[rule.Timing] {
			continue
		}
		offset, err := ParseTiming(rule.Timing)
		if err != nil {
			continue
		}
		dueDate := offset.From(in.LastVisit)
		if patients.DaysBetween(dueDate, today) < 0 {
			continue
		}
		out = append(out, Dispatch{
			PatientID: in.PatientID,
			Treatment: in.Treatment,
			Timing:    rule.Timing,
			Message:   RenderMessage(rule.Template, in.PatientName),
			DueDate:   dueDate,
			Status:    DispatchPending,
		})
	}
	return out
}
