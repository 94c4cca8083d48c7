package clock

import "time"

// FakeClock is a manually advanced Clock for tests. Expiry and daily-limit
// behavior depend on wall time, so tests pin it and step it forward.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
