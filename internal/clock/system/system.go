// Package system provides a real clock implementation.
package system

import "time"

// Clock implements gazette.Clock using time.Now in a fixed location.
// Run Guard days and gazette dates are calendar days in that location.
type Clock struct {
	loc *time.Location
}

// New creates a Clock in the process's local time zone.
func New() *Clock {
	return &Clock{loc: time.Local}
}

// NewIn creates a Clock that reports times in loc.
func NewIn(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{loc: loc}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}
