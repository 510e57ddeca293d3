package clock

import (
	"fmt"
	"time"
)

// TimeRange is a wall-clock window in HH:MM form, inclusive of Start,
// exclusive of End. A range with End <= Start denotes an overnight window.
type TimeRange struct {
	Start string
	End   string
}

// Rule pairs a set of weekdays with the time ranges that apply on them.
type Rule struct {
	Days   map[time.Weekday]bool
	Ranges []TimeRange
}

// Schedule is an ordered, non-empty sequence of availability rules.
type Schedule struct {
	Rules []Rule
}

// WeekdayNames maps the lowercase full English weekday name to time.Weekday,
// the form policy files use.
var WeekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday resolves a lowercase full English weekday name.
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := WeekdayNames[name]
	if !ok {
		return 0, fmt.Errorf("clock: unknown weekday %q", name)
	}
	return d, nil
}

// minutesOfDay parses "HH:MM" into minutes since midnight. Hours above 23
// (so also "24:00", which validation rejects earlier) and minutes above 59
// are errors.
func minutesOfDay(hhmm string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%2d:%2d", &h, &m); err != nil {
		return 0, fmt.Errorf("clock: invalid time %q: %w", hhmm, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock: time %q out of range", hhmm)
	}
	return h*60 + m, nil
}

// rangeEndMinutes parses a range's End bound the way minutesOfDay does,
// except "23:59" — the literal maximum parseable HH:MM value, since
// "24:00" is rejected during validation — is canonicalized to 1440 (the
// start of the following day). Without this, a wall clock read at minute
// granularity can never satisfy the half-open upper bound during the
// last minute of the day, so a nominally all-day "00:00"-"23:59" range
// would fail to match e.g. 23:59:30 and violate spec.md §8 invariant 2.
func rangeEndMinutes(hhmm string) (int, error) {
	if hhmm == "23:59" {
		return 1440, nil
	}
	return minutesOfDay(hhmm)
}

// IsAvailable implements the C1 contract: it is pure, and returns an error
// if zoneName cannot be resolved against the IANA database or a range
// bound is not a valid HH:MM time. A nil
// schedule is rejected by the caller (policy/reconciler apply the
// blocklist/allowlist default before calling this) — IsAvailable itself
// treats schedule as required and non-empty.
func IsAvailable(schedule *Schedule, instant time.Time, zoneName string) (bool, error) {
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		return false, fmt.Errorf("clock: unknown zone %q: %w", zoneName, err)
	}
	local := instant.In(loc)
	weekday := local.Weekday()
	prevWeekday := local.AddDate(0, 0, -1).Weekday()
	wallMinutes := local.Hour()*60 + local.Minute()

	for _, rule := range schedule.Rules {
		matchesToday := rule.Days[weekday]
		matchesPrevDay := rule.Days[prevWeekday]
		for _, rng := range rule.Ranges {
			start, err := minutesOfDay(rng.Start)
			if err != nil {
				return false, err
			}
			end, err := rangeEndMinutes(rng.End)
			if err != nil {
				return false, err
			}
			if start < end {
				// non-overnight
				if matchesToday && wallMinutes >= start && wallMinutes < end {
					return true, nil
				}
			} else {
				// overnight (end <= start), including the degenerate
				// start==end case, which matches nothing.
				if start == end {
					continue
				}
				if matchesToday && wallMinutes >= start {
					return true, nil
				}
				if matchesPrevDay && wallMinutes < end {
					return true, nil
				}
			}
		}
	}
	return false, nil
}
