// Package system provides the wall clock, optionally pinned to the operator timezone.
package system

import "time"

// Clock implements availability.Clock using time.Now.
type Clock struct {
	loc *time.Location
}

// New returns a clock reporting UTC.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewInLocation returns a clock reporting times in loc.
func NewInLocation(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's location.
func (c *Clock) Location() *time.Location {
	return c.loc
}
