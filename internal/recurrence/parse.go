package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Preset keywords accepted in place of a cron expression. All fire at
// 09:00 in the schedule's zone.
const (
	PresetDaily    = "daily"
	PresetWeekly   = "weekly"
	PresetWeekdays = "weekdays"
)

var presets = map[string]string{
	PresetDaily:    "0 9 * * *",
	PresetWeekly:   "0 9 * * 1",
	PresetWeekdays: "0 9 * * 1-5",
}

var ErrEmpty = errors.New("recurrence: empty expression")

// starBit is how robfig/cron marks a field written as "*".
const starBit = 1 << 63

var fieldParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse resolves a preset keyword or a five-field cron expression into a
// Schedule with no zone of its own. Such a schedule runs in UTC unless the
// caller (the job registry) assigns one.
func Parse(expr string) (Schedule, error) {
	return ParseIn(expr, nil)
}

// ParseIn is Parse with an explicit zone. A "TZ=" or "CRON_TZ=" prefix
// in the expression overrides loc.
func ParseIn(expr string, loc *time.Location) (Schedule, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return Schedule{}, ErrEmpty
	}
	spec := raw
	if p, ok := presets[strings.ToLower(raw)]; ok {
		spec = p
	}

	parsed, err := fieldParser.Parse(sundaySeven(spec))
	if err != nil {
		return Schedule{}, fmt.Errorf("recurrence %q: %w", raw, err)
	}
	ss, ok := parsed.(*cron.SpecSchedule)
	if !ok {
		return Schedule{}, fmt.Errorf("recurrence %q: unsupported schedule type %T", raw, parsed)
	}
	if strings.HasPrefix(spec, "TZ=") || strings.HasPrefix(spec, "CRON_TZ=") {
		loc = ss.Location
	}

	return Schedule{
		Minute:   fromBits(ss.Minute),
		Hour:     fromBits(ss.Hour),
		Dom:      fromBits(ss.Dom),
		Month:    fromBits(ss.Month),
		Dow:      fromBits(ss.Dow),
		Location: loc,
		expr:     raw,
	}, nil
}

// IsPreset reports whether expr is one of the keyword schedules.
func IsPreset(expr string) bool {
	_, ok := presets[strings.ToLower(strings.TrimSpace(expr))]
	return ok
}

// sundaySeven rewrites a day-of-week of 7 to 0. The parser only accepts
// 0-6 while cron users commonly write 7 for Sunday.
func sundaySeven(spec string) string {
	fields := strings.Fields(spec)
	if len(fields) > 0 && (strings.HasPrefix(fields[0], "TZ=") || strings.HasPrefix(fields[0], "CRON_TZ=")) {
		if len(fields) != 6 {
			return spec
		}
	} else if len(fields) != 5 {
		return spec
	}
	last := len(fields) - 1
	parts := strings.Split(fields[last], ",")
	changed := false
	for i, p := range parts {
		switch {
		case p == "7":
			parts[i] = "0"
			changed = true
		case strings.HasSuffix(p, "-7") && !strings.Contains(p, "/"):
			lo := strings.TrimSuffix(p, "-7")
			if lo == "7" {
				parts[i] = "0"
			} else {
				parts[i] = lo + "-6,0"
			}
			changed = true
		}
	}
	if !changed {
		return spec
	}
	fields[last] = strings.Join(parts, ",")
	return strings.Join(fields, " ")
}

func fromBits(b uint64) Set {
	if b&starBit != 0 {
		return 0
	}
	return Set(b)
}
