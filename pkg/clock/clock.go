package clock

import "time"

// Clock is the trusted time source for state transitions. Production code
// injects Real(); tests inject Fixed() so timestamps are deterministic.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real returns a Clock backed by the system clock.
func Real() Clock { return realClock{} }

// FixedClock always reports the same instant until Set or Advance is called.
type FixedClock struct {
	now time.Time
}

// Fixed returns a FixedClock pinned to the given unix second.
func Fixed(unix int64) *FixedClock {
	return &FixedClock{now: time.Unix(unix, 0).UTC()}
}

func (c *FixedClock) Now() time.Time { return c.now }

// Set moves the clock to the given unix second.
func (c *FixedClock) Set(unix int64) { c.now = time.Unix(unix, 0).UTC() }

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
