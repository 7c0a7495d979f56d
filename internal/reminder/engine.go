package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Engine performs civil-time computations against a single named zone. It is
// built once at startup; a missing or malformed zone database entry is a
// configuration error.
type Engine struct {
	loc *time.Location
}

// NewEngine resolves the named IANA zone. Pass ZoneName for the default.
func NewEngine(zone string) (*Engine, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return &Engine{loc: loc}, nil
}

// Location returns the engine's zone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// NextOccurrence returns the next absolute instant at which the reminder's
// local HH:MM occurs in the engine's zone, strictly after ref. Saturdays and
// Sundays (in the zone) are skipped for weekday-only reminders. The civil
// trigger time is held fixed across DST transitions, so the UTC offset of
// the result shifts with the zone.
func (e *Engine) NextOccurrence(r Reminder, ref time.Time) time.Time {
	local := ref.In(e.loc)
	cand := time.Date(local.Year(), local.Month(), local.Day(), r.Hour, r.Minute, 0, 0, e.loc)

	for !cand.After(ref) || (r.WeekdaysOnly && isWeekend(cand)) {
		// Advance one civil day; time.Date renormalizes month ends and DST.
		cand = time.Date(cand.Year(), cand.Month(), cand.Day()+1, r.Hour, r.Minute, 0, 0, e.loc)
	}
	return cand
}

// TimeUntilNext returns the earliest upcoming enabled reminder and the
// duration until it fires. ok is false when no reminders are enabled.
func (e *Engine) TimeUntilNext(ref time.Time) (next Reminder, until time.Duration, ok bool) {
	var best time.Time
	for _, r := range EnabledReminders() {
		occ := e.NextOccurrence(r, ref)
		if !ok || occ.Before(best) {
			next, best, ok = r, occ, true
		}
	}
	if !ok {
		return Reminder{}, 0, false
	}
	return next, best.Sub(ref), true
}

// WithinQuietHours reports whether the local civil time at t falls inside
// the [start, end) interval, which may span midnight. Both bounds are local
// "HH:MM" strings; an empty or malformed bound disables the check.
func (e *Engine) WithinQuietHours(t time.Time, start, end string) bool {
	startMin, okStart := parseClock(start)
	endMin, okEnd := parseClock(end)
	if !okStart || !okEnd {
		return false
	}

	local := t.In(e.loc)
	cur := local.Hour()*60 + local.Minute()

	if startMin < endMin {
		return cur >= startMin && cur < endMin
	}
	// Interval spans midnight.
	return cur >= startMin || cur < endMin
}

// OffsetMinutes returns the zone's UTC offset at ref, in minutes. The value
// differs across daylight-saving transitions.
func (e *Engine) OffsetMinutes(ref time.Time) int {
	_, offset := ref.In(e.loc).Zone()
	return offset / 60
}

// DayBounds returns the absolute start of the local calendar day containing
// ref and the start of the following day.
func (e *Engine) DayBounds(ref time.Time) (time.Time, time.Time) {
	local := ref.In(e.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
	return start, time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, e.loc)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func parseClock(s string) (minutes int, ok bool) {
	h, m, found := strings.Cut(s, ":")
	if !found {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	min, err := strconv.Atoi(m)
	if err != nil || min < 0 || min > 59 {
		return 0, false
	}
	return hour*60 + min, true
}
