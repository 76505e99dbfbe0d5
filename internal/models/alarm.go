package models

import "time"

// AlarmState is the alarm engine's externally visible state
type AlarmState struct {
	Enabled         bool          `json:"enabled"`
	Triggered       bool          `json:"triggered"`
	LastTriggerTime uint32        `json:"last_trigger_ms"` // monotonic counter value
	Cooldown        time.Duration `json:"-"`
	CooldownSeconds int64         `json:"cooldown_sec"`
	PM25Threshold   int           `json:"pm25_threshold"`
	PM10Threshold   int           `json:"pm10_threshold"`
	Reason          string        `json:"reason,omitempty"`
}

// Exceedance is one metric that crossed its threshold
type Exceedance struct {
	Metric    string `json:"metric"`
	Value     int    `json:"value"`
	Threshold int    `json:"threshold"`
}

// AlarmEvent is emitted on every NORMAL/TRIGGERED -> TRIGGERED evaluation
type AlarmEvent struct {
	ID        string       `json:"id"`
	DeviceID  string       `json:"device_id"`
	Timestamp time.Time    `json:"timestamp"`
	Reason    string       `json:"reason"`
	Exceeded  []Exceedance `json:"exceeded"`
}
