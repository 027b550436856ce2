package appointment

import (
	"fmt"
	"strings"
	"time"
)

const (
	isoDateLayout     = "2006-01-02"
	spanishDateLayout = "02-01-2006"
)

// DateOnly drops the clock part of t and returns midnight UTC of the same
// calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD and DD-MM-YYYY.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{isoDateLayout, spanishDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or DD-MM-YYYY", s)
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(isoDateLayout)
}

// DaysBetween counts the whole calendar days from `from` to `to`. It is
// negative when `to` is before `from`. Only the calendar date of each value is
// used.
func DaysBetween(from, to time.Time) int {
	const secondsPerDay = 24 * 60 * 60
	return int(DateOnly(to).Unix()/secondsPerDay - DateOnly(from).Unix()/secondsPerDay)
}
