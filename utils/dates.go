package utils

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day key format used for login and challenge accounting.
const DateLayout = "2006-01-02"

// DateKey returns the calendar day of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// DayBounds returns local midnight of t's day and the following midnight.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// DaysBetween returns the whole calendar days from one date key to another.
// It counts calendar dates, so DST transitions do not skew the result.
func DaysBetween(from, to string) (int, error) {
	a, err := time.Parse(DateLayout, from)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", from, err)
	}
	b, err := time.Parse(DateLayout, to)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", to, err)
	}
	return int(b.Sub(a).Hours() / 24), nil
}
