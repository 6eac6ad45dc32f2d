package availability

import (
	"fmt"
	"time"
)

// DateLayout is the wire form of a DateKey.
const DateLayout = "2006-01-02"

// DefaultHorizonDays is the rolling window adapters are asked to cover.
const DefaultHorizonDays = 7

// DateKey is a calendar date in YYYY-MM-DD form.
type DateKey string

// NewDateKey formats t in its own location.
func NewDateKey(t time.Time) DateKey {
	return DateKey(t.Format(DateLayout))
}

// ParseDateKey validates s and returns it as a DateKey.
func ParseDateKey(s string) (DateKey, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("parse date key %q: %w", s, err)
	}
	return NewDateKey(t), nil
}

// Time returns midnight of the date in loc.
func (d DateKey) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, string(d), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", d, err)
	}
	return t, nil
}

// Window returns days consecutive date keys starting at now's calendar date.
// now should already be in the operator timezone.
func Window(now time.Time, days int) []DateKey {
	if days <= 0 {
		days = DefaultHorizonDays
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	out := make([]DateKey, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, NewDateKey(start.AddDate(0, 0, i)))
	}
	return out
}

// InferDate resolves a month/day label without a year against now. Labels that
// cross a year boundary in either direction are assigned to the adjacent year.
func InferDate(month, day int, now time.Time) (DateKey, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", fmt.Errorf("invalid month/day %d/%d", month, day)
	}
	year := now.Year()
	switch {
	case month == 1 && now.Month() == time.December:
		year++
	case month == 12 && now.Month() == time.January:
		year--
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
	if t.Month() != time.Month(month) {
		return "", fmt.Errorf("invalid date %d/%d/%d", year, month, day)
	}
	return NewDateKey(t), nil
}
