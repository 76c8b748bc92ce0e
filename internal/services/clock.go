package services

import "time"

// Clock returns the current time. Services take one so tests can pin the
// review and edit deadlines.
type Clock func() time.Time

// SystemClock is the wall clock in UTC. Deadlines are stored and compared
// in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}
