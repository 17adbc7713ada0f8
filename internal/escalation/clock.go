// Package escalation implements the shared core of the staged
// payment-recovery engines: elapsed-time clocks, stage resolution,
// surcharge accumulation and notification templating. Everything in
// this package is pure and persistence-free.
package escalation

import (
	"math"
	"time"
)

// ClockMode selects how elapsed units are counted.
type ClockMode int

const (
	// ModeCalendar counts whole calendar days, rounding up.
	ModeCalendar ClockMode = iota
	// ModeBusiness counts Monday-Friday days only. No public-holiday
	// calendar is consulted.
	ModeBusiness
)

// ElapsedUnits converts the time since an entity became eligible into an
// integer count of elapsed units. The result is never negative; callers
// that must not escalate before the eligibility date have to check
// now >= since themselves before resolving a stage.
func ElapsedUnits(since, now time.Time, mode ClockMode) int {
	if mode == ModeBusiness {
		return businessDays(since, now)
	}
	return calendarDays(since, now)
}

// calendarDays returns ceil(|now-since| / 24h). The absolute value keeps
// clock skew between services from producing negative escalation.
func calendarDays(since, now time.Time) int {
	diff := now.Sub(since)
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(diff.Hours() / 24))
}

// businessDays counts the weekdays in [since, now) at day granularity.
func businessDays(since, now time.Time) int {
	start := midnight(since)
	end := midnight(now)
	if !end.After(start) {
		return 0
	}
	count := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
