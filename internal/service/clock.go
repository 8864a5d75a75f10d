package service

import "time"

// Clock supplies the ticks the outbox compares for expiry.
type Clock interface {
	Tick() int64
}

// MonotonicClock counts milliseconds since it was created. It reads the
// monotonic clock, so wall-clock jumps do not expire messages early.
type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Tick() int64 {
	return time.Since(c.start).Milliseconds()
}

// DurationToTicks converts d to whole ticks.
func DurationToTicks(d time.Duration) int64 {
	return d.Milliseconds()
}
