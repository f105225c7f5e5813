// Package system provides the wall clock used for cache timestamps and
// request records.
package system

import "time"

// Clock implements media.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
