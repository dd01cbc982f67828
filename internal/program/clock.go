package program

import (
	"sync/atomic"
	"time"
)

// Clock supplies the ledger time used for poll windows.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a settable clock for tests and replays.
type ManualClock struct {
	unix atomic.Int64
}

// NewManualClock returns a clock fixed at unix seconds.
func NewManualClock(unix int64) *ManualClock {
	c := &ManualClock{}
	c.unix.Store(unix)
	return c
}

// Now returns the current setting.
func (c *ManualClock) Now() time.Time { return time.Unix(c.unix.Load(), 0) }

// Set moves the clock to unix seconds.
func (c *ManualClock) Set(unix int64) { c.unix.Store(unix) }

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) { c.unix.Add(int64(d / time.Second)) }
