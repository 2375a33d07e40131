package probe

import "time"

// DeadlineTracker measures time elapsed since its creation. It is a plain
// value used transiently inside polling loops; the clock is injectable for
// tests.
type DeadlineTracker struct {
	start time.Time
	now   func() time.Time
}

// NewDeadlineTracker creates a tracker starting now
func NewDeadlineTracker() DeadlineTracker {
	return NewDeadlineTrackerWithClock(time.Now)
}

// NewDeadlineTrackerWithClock creates a tracker using the given clock
func NewDeadlineTrackerWithClock(now func() time.Time) DeadlineTracker {
	return DeadlineTracker{start: now(), now: now}
}

// Elapsed returns the time since the tracker was created
func (d DeadlineTracker) Elapsed() time.Duration {
	return d.now().Sub(d.start)
}

// Expired reports whether the given deadline has passed
func (d DeadlineTracker) Expired(deadline time.Duration) bool {
	return d.Elapsed() >= deadline
}

// Remaining returns the time left before the deadline, or zero if expired
func (d DeadlineTracker) Remaining(deadline time.Duration) time.Duration {
	left := deadline - d.Elapsed()
	if left < 0 {
		return 0
	}
	return left
}
