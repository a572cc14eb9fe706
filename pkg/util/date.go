package util

import (
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{"2006.01.02", "2006-01-02", "2006/01/02"}

var clockLayouts = []string{"15:04:05", "15:04"}

// ParseBarTime combines an exported date and an optional time-of-day into a
// UTC timestamp. It tries dotted, dashed and slashed dates, then RFC3339 and
// unix seconds when no clock is given. A date holding "<date> <clock>" is
// split first. Returns (t, true) if any worked.
func ParseBarTime(date, clock string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" {
		return time.Time{}, false
	}
	if clock == "" {
		if d, c, ok := strings.Cut(date, " "); ok {
			return ParseBarTime(d, c)
		}
		if t, ok := parseDate(date); ok {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, date); err == nil {
			return t.UTC(), true
		}
		if ts, err := strconv.ParseInt(date, 10, 64); err == nil && ts > 0 {
			return time.Unix(ts, 0).UTC(), true
		}
		return time.Time{}, false
	}
	day, ok := parseDate(date)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range clockLayouts {
		if c, err := time.Parse(layout, clock); err == nil {
			return day.Add(time.Duration(c.Hour())*time.Hour +
				time.Duration(c.Minute())*time.Minute +
				time.Duration(c.Second())*time.Second), true
		}
	}
	return time.Time{}, false
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
