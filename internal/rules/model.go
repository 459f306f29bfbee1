package rules

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Weekday is an ISO weekday, Monday = 1 through Sunday = 7.
type Weekday int16

const (
	Monday    Weekday = 1
	Tuesday   Weekday = 2
	Wednesday Weekday = 3
	Thursday  Weekday = 4
	Friday    Weekday = 5
	Saturday  Weekday = 6
	Sunday    Weekday = 7
)

var weekdayNames = map[Weekday]string{
	Monday:    "MON",
	Tuesday:   "TUE",
	Wednesday: "WED",
	Thursday:  "THU",
	Friday:    "FRI",
	Saturday:  "SAT",
	Sunday:    "SUN",
}

var weekdayValues = map[string]Weekday{
	"MON": Monday,
	"TUE": Tuesday,
	"WED": Wednesday,
	"THU": Thursday,
	"FRI": Friday,
	"SAT": Saturday,
	"SUN": Sunday,
}

// FromTime converts a time.Weekday (Sunday = 0) to an ISO Weekday.
func FromTime(wd time.Weekday) Weekday {
	if wd == time.Sunday {
		return Sunday
	}
	return Weekday(wd)
}

func (w Weekday) String() string {
	if name, ok := weekdayNames[w]; ok {
		return name
	}
	return fmt.Sprintf("Weekday(%d)", int16(w))
}

func (w Weekday) MarshalJSON() ([]byte, error) {
	name, ok := weekdayNames[w]
	if !ok {
		return nil, fmt.Errorf("rules: invalid weekday %d", int16(w))
	}
	return json.Marshal(name)
}

func (w *Weekday) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	value, ok := weekdayValues[name]
	if !ok {
		return fmt.Errorf("rules: unknown weekday %q", name)
	}
	*w = value
	return nil
}

// AvailabilityRule is a recurring weekly window during which a provider
// accepts bookings. Hours are provider-local, [StartHour:00, EndHour:00).
type AvailabilityRule struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"providerId"`
	DaysOfWeek []Weekday `json:"daysOfWeek"`
	StartHour  int       `json:"startHour"`
	EndHour    int       `json:"endHour"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Matches reports whether the rule covers the given calendar day.
func (r *AvailabilityRule) Matches(day time.Time) bool {
	wd := FromTime(day.Weekday())
	for _, d := range r.DaysOfWeek {
		if d == wd {
			return true
		}
	}
	return false
}
