package core

import "time"

// Clock is the single canonical time source. Anything time-sensitive
// (attempt expiry, exam windows) must go through it; timestamps supplied by
// clients are never authoritative.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now().UTC() }

// FixedClock is a Clock pinned to a settable instant; mockable for tests.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
