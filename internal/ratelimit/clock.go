/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package ratelimit

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc is an adapter to allow the use of ordinary functions as Clock.
type ClockFunc func() time.Time

// Now calls f().
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock returns the wall-clock time.
var SystemClock Clock = ClockFunc(time.Now)
