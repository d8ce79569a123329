package timeref

import "time"

// Clock provides the current wall-clock time as an alternative to
// calling time.Now() directly, so tests can inject a fixed "now"
// instead of depending on the real clock. Adapted from the teacher's
// rtcmlogger/clock package (Clock / SystemClock / StoppedClock).
type Clock interface {
	Now() time.Time
}

// SystemClock satisfies Clock using the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// StoppedClock always returns the same instant; used in tests to pin
// "now" when checking TimeRef freshness.
type StoppedClock struct {
	At time.Time
}

func (c StoppedClock) Now() time.Time { return c.At }
