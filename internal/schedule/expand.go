package schedule

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/booking-platform/internal/rules"
)

// Expansion validation errors.
var (
	ErrInvalidRange    = errors.New("schedule: fromDate is after toDate")
	ErrInvalidDuration = errors.New("schedule: slot duration must be positive")
)

// CandidateSlot is a concrete bookable interval produced by expansion,
// not yet persisted.
type CandidateSlot struct {
	ProviderID uuid.UUID
	RuleID     uuid.UUID
	Start      time.Time
	End        time.Time
}

// Expand slices each matching calendar day in [fromDate, toDate] into
// consecutive half-open intervals of the given duration inside the rule's
// [StartHour:00, EndHour:00) window. A trailing interval shorter than the
// duration is discarded. The result is deterministic and side-effect free;
// idempotence against already-materialized slots is the store's concern.
func Expand(rule *rules.AvailabilityRule, fromDate, toDate time.Time, duration time.Duration) ([]CandidateSlot, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}

	loc := fromDate.Location()
	from := midnight(fromDate, loc)
	to := midnight(toDate, loc)
	if from.After(to) {
		return nil, ErrInvalidRange
	}

	window := time.Duration(rule.EndHour-rule.StartHour) * time.Hour
	perDay := int(window / duration)

	out := make([]CandidateSlot, 0, perDay*2)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !rule.Matches(day) {
			continue
		}
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), rule.StartHour, 0, 0, 0, loc)
		for i := 0; i < perDay; i++ {
			start := dayStart.Add(time.Duration(i) * duration)
			out = append(out, CandidateSlot{
				ProviderID: rule.ProviderID,
				RuleID:     rule.ID,
				Start:      start,
				End:        start.Add(duration),
			})
		}
	}
	return out, nil
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
