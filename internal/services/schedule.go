package services

import (
	"air-monitor/internal/clock"
)

const (
	// DefaultPublishIntervalMinutes gives a 90 s read interval with a 10 sample window
	DefaultPublishIntervalMinutes = 15
	MinPublishIntervalMinutes     = 1
	MaxPublishIntervalMinutes     = 60

	// WakeLeadMillis is the particulate sensor warm-up before a read
	WakeLeadMillis = 30_000
)

// Schedule spaces reads so that one window of samples fills per publish interval
type Schedule struct {
	ReadInterval uint32
	WakeLead     uint32
	// KeepAwake is set when reads come faster than the warm-up lead
	KeepAwake bool
}

// NewSchedule derives the read interval as publishMinutes*60000/samples
func NewSchedule(publishMinutes, samples int) Schedule {
	if publishMinutes < MinPublishIntervalMinutes {
		publishMinutes = MinPublishIntervalMinutes
	}
	if samples < 1 {
		samples = 1
	}
	interval := uint32(publishMinutes) * 60_000 / uint32(samples)
	return Schedule{
		ReadInterval: interval,
		WakeLead:     WakeLeadMillis,
		KeepAwake:    interval <= WakeLeadMillis,
	}
}

// ReadDue reports whether a read cycle should start
func (s Schedule) ReadDue(now, lastRead clock.Millis) bool {
	return clock.Reached(now, lastRead, s.ReadInterval)
}

// WakeDue reports whether a sleeping sensor should be woken for the next read
func (s Schedule) WakeDue(now, lastRead clock.Millis) bool {
	if s.KeepAwake {
		return true
	}
	return clock.Reached(now, lastRead, s.ReadInterval-s.WakeLead)
}
