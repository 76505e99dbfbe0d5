package health

import "air-monitor/internal/models"

// Consecutive cycles needed to raise the advisory statuses
const (
	FanStuckCycles = 5
	ZeroDataCycles = 5
)

// Triple is the conditioned PM1, PM2.5, PM10 of one cycle
type Triple [3]int

// FanDetector flags a particulate sensor whose output stops changing or
// drops to zero. The two counters are independent.
type FanDetector struct {
	prev    Triple
	hasPrev bool
	stuck   int
	zero    int
}

// Check records one cycle's triple and returns OK, FAN_STUCK or ZERO_DATA.
func (f *FanDetector) Check(t Triple) models.SensorStatus {
	if f.hasPrev && t == f.prev {
		f.stuck++
	} else {
		f.stuck = 0
	}

	if t == (Triple{}) {
		f.zero++
	} else {
		f.zero = 0
	}

	f.prev = t
	f.hasPrev = true
	return f.Status()
}

// Status reports the advisory state from the current counters
func (f *FanDetector) Status() models.SensorStatus {
	switch {
	case f.zero >= ZeroDataCycles:
		return models.StatusZeroData
	case f.stuck >= FanStuckCycles:
		return models.StatusFanStuck
	default:
		return models.StatusOK
	}
}

// Reset forgets the previous triple and both counters
func (f *FanDetector) Reset() {
	*f = FanDetector{}
}

func (f *FanDetector) StuckCount() int {
	return f.stuck
}

func (f *FanDetector) ZeroCount() int {
	return f.zero
}
