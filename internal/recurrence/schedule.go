// Package recurrence implements the cron-like schedules used by recurring
// reminders.
//
// A Schedule is plain data: one Set per cron field plus the zone it is
// evaluated in. Next is a pure function of the schedule and the reference
// time; no background runner is involved.
package recurrence

import (
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// Set is a bitmask of allowed values for one field. The zero Set is the
// wildcard and matches every value.
type Set uint64

// SetOf builds a Set holding vals.
func SetOf(vals ...int) Set {
	var s Set
	for _, v := range vals {
		if v >= 0 && v < 63 {
			s |= 1 << uint(v)
		}
	}
	return s
}

func (s Set) Wildcard() bool { return s == 0 }

// Has reports whether v is allowed.
func (s Set) Has(v int) bool {
	if s == 0 {
		return true
	}
	return v >= 0 && v < 63 && s&(1<<uint(v)) != 0
}

// Values lists the allowed values in ascending order. Nil for a wildcard.
func (s Set) Values() []int {
	if s == 0 {
		return nil
	}
	out := make([]int, 0, bits.OnesCount64(uint64(s)))
	for v := 0; v < 63; v++ {
		if s&(1<<uint(v)) != 0 {
			out = append(out, v)
		}
	}
	return out
}

func (s Set) String() string {
	vals := s.Values()
	if vals == nil {
		return "*"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// Schedule is a five-field cron schedule. Day of week uses 0 for Sunday.
type Schedule struct {
	Minute Set
	Hour   Set
	Dom    Set
	Month  Set
	Dow    Set

	// Location defaults to UTC when nil.
	Location *time.Location

	expr string
}

// Expr returns the expression the schedule was parsed from, or a canonical
// rendering for hand-built schedules.
func (s Schedule) Expr() string {
	if s.expr != "" {
		return s.expr
	}
	return s.String()
}

func (s Schedule) String() string {
	return strings.Join([]string{
		s.Minute.String(), s.Hour.String(), s.Dom.String(), s.Month.String(), s.Dow.String(),
	}, " ")
}

// In returns a copy evaluated in loc.
func (s Schedule) In(loc *time.Location) Schedule {
	s.Location = loc
	return s
}

func (s Schedule) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// searchYears bounds Next for schedules that can never match (Feb 30).
const searchYears = 5

// Next returns the first whole minute strictly after the reference time
// that matches every field. ok is false when nothing matches within a few
// years.
func (s Schedule) Next(after time.Time) (next time.Time, ok bool) {
	loc := s.location()
	a := after.In(loc)
	t := time.Date(a.Year(), a.Month(), a.Day(), a.Hour(), a.Minute(), 0, 0, loc).Add(time.Minute)
	limit := t.Year() + searchYears

	for t.Year() <= limit {
		switch {
		case !s.Month.Has(int(t.Month())):
			t = advance(t, time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc))
		case !s.dayMatches(t):
			t = advance(t, time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc))
		case !s.Hour.Has(t.Hour()):
			t = advance(t, time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc))
		case !s.Minute.Has(t.Minute()):
			t = advance(t, t.Add(time.Minute))
		default:
			return t, true
		}
	}
	return time.Time{}, false
}

// dayMatches follows cron: with both day fields restricted either may
// match, otherwise both must.
func (s Schedule) dayMatches(t time.Time) bool {
	dom := s.Dom.Has(t.Day())
	dow := s.Dow.Has(int(t.Weekday()))
	if s.Dom.Wildcard() || s.Dow.Wildcard() {
		return dom && dow
	}
	return dom || dow
}

// advance guarantees forward progress across DST transitions, where
// time.Date may normalize a wall clock that does not exist.
func advance(cur, next time.Time) time.Time {
	if !next.After(cur) {
		return cur.Add(time.Minute)
	}
	return next
}
