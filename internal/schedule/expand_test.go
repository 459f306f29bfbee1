package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/booking-platform/internal/rules"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExpandSingleMonday(t *testing.T) {
	rule := &rules.AvailabilityRule{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		DaysOfWeek: []rules.Weekday{rules.Monday},
		StartHour:  9,
		EndHour:    10,
	}

	// 2025-06-02 is a Monday.
	monday := date(2025, time.June, 2)
	slots, err := Expand(rule, monday, monday, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	assert.Equal(t, time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Equal(t, time.Date(2025, time.June, 2, 9, 30, 0, 0, time.UTC), slots[0].End)
	assert.Equal(t, time.Date(2025, time.June, 2, 9, 30, 0, 0, time.UTC), slots[1].Start)
	assert.Equal(t, time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC), slots[1].End)
}

func TestExpandSlotCountPerWeekday(t *testing.T) {
	rule := &rules.AvailabilityRule{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		DaysOfWeek: []rules.Weekday{rules.Monday, rules.Wednesday},
		StartHour:  9,
		EndHour:    17,
	}

	// Two full weeks: 4 matching days, 8h window / 30m = 16 slots each.
	slots, err := Expand(rule, date(2025, time.June, 2), date(2025, time.June, 15), 30*time.Minute)
	require.NoError(t, err)
	assert.Len(t, slots, 4*16)

	for _, s := range slots {
		assert.True(t, s.Start.Before(s.End))
		assert.GreaterOrEqual(t, s.Start.Hour(), 9)
		assert.LessOrEqual(t, s.End.Hour(), 17)
	}
}

func TestExpandSlotsDoNotOverlap(t *testing.T) {
	rule := &rules.AvailabilityRule{
		ProviderID: uuid.New(),
		DaysOfWeek: []rules.Weekday{rules.Friday},
		StartHour:  8,
		EndHour:    12,
	}

	slots, err := Expand(rule, date(2025, time.June, 2), date(2025, time.June, 8), 45*time.Minute)
	require.NoError(t, err)

	for i := 1; i < len(slots); i++ {
		assert.False(t, slots[i].Start.Before(slots[i-1].End),
			"slot %d starts before slot %d ends", i, i-1)
	}
}

func TestExpandDiscardsShortTrailingInterval(t *testing.T) {
	rule := &rules.AvailabilityRule{
		ProviderID: uuid.New(),
		DaysOfWeek: []rules.Weekday{rules.Monday},
		StartHour:  9,
		EndHour:    10,
	}

	// 60 minutes / 45 = one full slot, 15-minute remainder dropped.
	slots, err := Expand(rule, date(2025, time.June, 2), date(2025, time.June, 2), 45*time.Minute)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, time.Date(2025, time.June, 2, 9, 45, 0, 0, time.UTC), slots[0].End)
}

func TestExpandNoMatchingWeekdaysIsEmptyNotError(t *testing.T) {
	rule := &rules.AvailabilityRule{
		ProviderID: uuid.New(),
		DaysOfWeek: []rules.Weekday{rules.Sunday},
		StartHour:  9,
		EndHour:    17,
	}

	// Monday through Friday only.
	slots, err := Expand(rule, date(2025, time.June, 2), date(2025, time.June, 6), 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	rule := &rules.AvailabilityRule{
		ProviderID: uuid.New(),
		DaysOfWeek: []rules.Weekday{rules.Monday},
		StartHour:  9,
		EndHour:    17,
	}

	_, err := Expand(rule, date(2025, time.June, 8), date(2025, time.June, 2), 30*time.Minute)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestExpandRejectsNonPositiveDuration(t *testing.T) {
	rule := &rules.AvailabilityRule{
		ProviderID: uuid.New(),
		DaysOfWeek: []rules.Weekday{rules.Monday},
		StartHour:  9,
		EndHour:    17,
	}

	_, err := Expand(rule, date(2025, time.June, 2), date(2025, time.June, 2), 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestExpandDeterministic(t *testing.T) {
	rule := &rules.AvailabilityRule{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		DaysOfWeek: []rules.Weekday{rules.Tuesday, rules.Thursday},
		StartHour:  10,
		EndHour:    14,
	}

	a, err := Expand(rule, date(2025, time.June, 1), date(2025, time.June, 30), time.Hour)
	require.NoError(t, err)
	b, err := Expand(rule, date(2025, time.June, 1), date(2025, time.June, 30), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
