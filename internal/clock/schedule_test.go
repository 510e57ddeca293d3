package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustDays(names ...string) map[time.Weekday]bool {
	out := make(map[time.Weekday]bool)
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			panic(err)
		}
		out[d] = true
	}
	return out
}

func TestIsAvailableWeekdayUniversalRuleAlwaysTrue(t *testing.T) {
	schedule := &Schedule{Rules: []Rule{{
		Days:   mustDays("sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"),
		Ranges: []TimeRange{{Start: "00:00", End: "23:59"}},
	}}}
	instant := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	ok, err := IsAvailable(schedule, instant, "UTC")
	require.NoError(t, err)
	require.True(t, ok)

	// The last minute of the day, including its final seconds, must still
	// be covered by a 00:00-23:59 rule (spec.md §8 invariant 2).
	lastMinute := time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC)
	ok, err = IsAvailable(schedule, lastMinute, "UTC")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsAvailableEmptyWindowMatchesNothing(t *testing.T) {
	schedule := &Schedule{Rules: []Rule{{
		Days:   mustDays("monday"),
		Ranges: []TimeRange{{Start: "00:00", End: "00:00"}},
	}}}
	instant := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC) // a Monday
	ok, err := IsAvailable(schedule, instant, "UTC")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsAvailableOvernightRange(t *testing.T) {
	schedule := &Schedule{Rules: []Rule{{
		Days:   mustDays("monday"),
		Ranges: []TimeRange{{Start: "22:00", End: "02:00"}},
	}}}

	mondayNight := time.Date(2024, 1, 15, 22, 30, 0, 0, time.UTC)
	ok, err := IsAvailable(schedule, mondayNight, "UTC")
	require.NoError(t, err)
	require.True(t, ok)

	tuesdayEarly := time.Date(2024, 1, 16, 1, 30, 0, 0, time.UTC)
	ok, err = IsAvailable(schedule, tuesdayEarly, "UTC")
	require.NoError(t, err)
	require.True(t, ok)

	tuesdayAtEnd := time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC)
	ok, err = IsAvailable(schedule, tuesdayAtEnd, "UTC")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsAvailableUnknownZone(t *testing.T) {
	schedule := &Schedule{Rules: []Rule{{Days: mustDays("monday"), Ranges: []TimeRange{{Start: "00:00", End: "01:00"}}}}}
	_, err := IsAvailable(schedule, time.Now(), "Nowhere/Imaginary")
	require.Error(t, err)
}

func TestIsAvailableWeekdayScheduleOutsideRange(t *testing.T) {
	schedule := &Schedule{Rules: []Rule{{
		Days: mustDays("monday", "tuesday", "wednesday", "thursday", "friday"),
		Ranges: []TimeRange{
			{Start: "12:00", End: "13:00"},
			{Start: "18:00", End: "22:00"},
		},
	}}}
	// New York, 2024-01-15 is a Monday.
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	inRange := time.Date(2024, 1, 15, 12, 30, 0, 0, loc)
	ok, err := IsAvailable(schedule, inRange, "America/New_York")
	require.NoError(t, err)
	require.True(t, ok)

	outsideRange := time.Date(2024, 1, 15, 14, 30, 0, 0, loc)
	ok, err = IsAvailable(schedule, outsideRange, "America/New_York")
	require.NoError(t, err)
	require.False(t, ok)
}
