package engine

import (
	"sync/atomic"
	"time"
)

// TimeSource reports the current wall-clock time. Injected so tests can
// control versions and poll timestamps.
type TimeSource interface {
	Now() time.Time
}

// SystemTime is the production TimeSource.
type SystemTime struct{}

// Now returns time.Now().
func (SystemTime) Now() time.Time { return time.Now() }

// VersionClock stamps local mutations with strictly increasing versions.
//
// Versions are Unix milliseconds when the wall clock moves forward, and
// last+1 when it does not (two edits in the same millisecond, or the clock
// stepping backwards).
//
// Thread-safety: VersionClock is safe for concurrent use (atomic operations).
type VersionClock struct {
	time TimeSource
	last atomic.Int64
}

// NewVersionClock creates a clock reading from ts.
func NewVersionClock(ts TimeSource) *VersionClock {
	if ts == nil {
		ts = SystemTime{}
	}
	return &VersionClock{time: ts}
}

// Next returns a version greater than every version returned before.
func (c *VersionClock) Next() int64 {
	for {
		last := c.last.Load()
		next := c.time.Now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Current returns the last version handed out without advancing.
func (c *VersionClock) Current() int64 {
	return c.last.Load()
}
