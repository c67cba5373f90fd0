// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements audit.Clock. Times are UTC unless a location is set.
type Clock struct {
	loc *time.Location
}

// New creates a UTC Clock.
func New() *Clock {
	return &Clock{}
}

// In returns a Clock reporting times in loc. Report prompts are dated in the site's
// local time zone.
func In(loc *time.Location) *Clock {
	return &Clock{loc: loc}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	now := time.Now()
	if c == nil || c.loc == nil {
		return now.UTC()
	}
	return now.In(c.loc)
}
