package clock

import "time"

// Millis is a monotonic millisecond counter that wraps after ~49.7 days.
// Compare instants only through Elapsed/Reached, never with < or >.
type Millis uint32

// Clock supplies the current counter value
type Clock interface {
	Now() Millis
}

// Elapsed returns the milliseconds from since to now, correct across one wrap.
func Elapsed(now, since Millis) uint32 {
	return uint32(now - since)
}

// Reached reports whether at least interval ms have passed since last.
func Reached(now, last Millis, interval uint32) bool {
	return Elapsed(now, last) >= interval
}

// FromDuration converts a duration to a millisecond interval, saturating at the counter range.
func FromDuration(d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 0
	}
	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ms)
}

// System is a Clock backed by the process monotonic clock
type System struct {
	start time.Time
}

// NewSystem creates a clock whose counter starts at zero now
func NewSystem() *System {
	return &System{start: time.Now()}
}

// Now returns the elapsed milliseconds truncated to 32 bits
func (s *System) Now() Millis {
	return Millis(uint32(time.Since(s.start).Milliseconds()))
}

// Manual is a Clock driven by hand, used by tests and replay tools
type Manual struct {
	T Millis
}

func (m *Manual) Now() Millis {
	return m.T
}

// Advance moves the clock forward by ms milliseconds
func (m *Manual) Advance(ms uint32) {
	m.T += Millis(ms)
}
