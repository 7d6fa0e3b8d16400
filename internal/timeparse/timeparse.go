// Package timeparse turns user supplied text into absolute timestamps.
//
// Two forms are understood: strict ISO-8601 timestamps and a relative
// "in <N> minutes|hours|days" phrase anywhere in the text. Anything else
// yields no result; callers treat that as "do not schedule".
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// isoLayouts are tried in order. Layouts without a zone are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

var relativeRe = regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(minutes?|hours?|days?)\b`)

// Parse returns the timestamp described by text, evaluated against now.
// ISO input is returned as written; relative input is now (in UTC) plus
// the first matched duration.
func Parse(text string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := ParseISO(s); ok {
		return t, true
	}
	d, ok := Relative(s)
	if !ok {
		return time.Time{}, false
	}
	return now.UTC().Add(d), true
}

// ParseISO parses s as a strict ISO-8601 timestamp.
func ParseISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Relative finds the first "in N unit" phrase in s and returns its length.
func Relative(s string) (time.Duration, bool) {
	m := relativeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	var unit time.Duration
	switch u := strings.ToLower(m[2]); {
	case strings.HasPrefix(u, "minute"):
		unit = time.Minute
	case strings.HasPrefix(u, "hour"):
		unit = time.Hour
	default:
		unit = 24 * time.Hour
	}
	// Reject values that would overflow time.Duration.
	if n > int64((1<<63-1)/unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}
