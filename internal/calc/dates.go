package calc

import (
	"strings"
	"time"
)

// DateLayout is the ISO date format used for storage and display.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDate parses an ISO date (optionally with a time part) to UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), true
		}
	}
	if len(s) > len(DateLayout) {
		if t, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDatePtr parses s, returning nil when it is empty or unparseable.
func ParseDatePtr(s string) *time.Time {
	t, ok := ParseDate(s)
	if !ok {
		return nil
	}
	return &t
}

// FormatDate formats t as an ISO date. A zero time formats as "".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// FormatDatePtr formats t, returning "" for nil.
func FormatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatDate(*t)
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const secondsPerDay = 24 * 60 * 60

// DaysBetween returns the whole calendar days from a to b (negative when b is
// before a). It works on Unix seconds so far-apart dates do not overflow a
// time.Duration.
func DaysBetween(a, b time.Time) int {
	return int((Day(b).Unix() - Day(a).Unix()) / secondsPerDay)
}

// DaysToExpiration returns max(0, expiration - today) in days. A nil or zero
// expiration yields 0.
func DaysToExpiration(expiration *time.Time, today time.Time) int {
	if expiration == nil || expiration.IsZero() {
		return 0
	}
	days := DaysBetween(today, *expiration)
	if days < 0 {
		return 0
	}
	return days
}
