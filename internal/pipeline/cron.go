package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField is the set of values one field of a five-field cron expression
// matches. A nil set matches everything.
type cronField map[int]bool

func (f cronField) matches(v int) bool {
	return f == nil || f[v]
}

// parseCronField accepts "*", "*/n", "a", "a-b", "a-b/n" and comma
// separated lists of those.
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return nil, nil
	}
	set := cronField{}
	for _, part := range strings.Split(field, ",") {
		rng, step := part, 1
		if i := strings.IndexByte(part, '/'); i >= 0 {
			n, err := strconv.Atoi(part[i+1:])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("bad step in %q", part)
			}
			rng, step = part[:i], n
		}

		from, to := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return nil, fmt.Errorf("bad range %q", rng)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return nil, fmt.Errorf("bad range %q", rng)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return nil, fmt.Errorf("bad value %q", rng)
			}
			from, to = v, v
		}
		if from < lo || to > hi || from > to {
			return nil, fmt.Errorf("%q outside %d-%d", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			set[v] = true
		}
	}
	return set, nil
}

// Schedule is a parsed "minute hour day-of-month month day-of-week"
// expression evaluated in UTC.
type Schedule struct {
	minute, hour, dom, month, dow cronField
}

// ParseSchedule parses a five-field cron expression.
func ParseSchedule(expr string) (Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron %q: want 5 fields, got %d", expr, len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	var parsed [5]cronField
	for i, f := range fields {
		p, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return Schedule{}, fmt.Errorf("cron %q field %d: %w", expr, i+1, err)
		}
		parsed[i] = p
	}
	return Schedule{minute: parsed[0], hour: parsed[1], dom: parsed[2], month: parsed[3], dow: parsed[4]}, nil
}

func (s Schedule) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dom.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dow.matches(int(t.Weekday()))
}

// Next returns the first minute strictly after t that matches, searching at
// most a year ahead.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	t = t.UTC()
	limit := t.AddDate(1, 0, 1)
	for c := t.Truncate(time.Minute).Add(time.Minute); c.Before(limit); c = c.Add(time.Minute) {
		if s.matches(c) {
			return c, nil
		}
	}
	return time.Time{}, fmt.Errorf("cron: no match within a year of %s", t.Format(time.RFC3339))
}
