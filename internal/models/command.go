package models

import "encoding/json"

// Asset names accepted on the command topic
const (
	AssetInterval       = "interval"
	AssetTempOffset     = "temperature-offset"
	AssetAltitude       = "altitude-set"
	AssetAlarmEnable    = "alarm-enable"
	AssetCalibration    = "calibration"
	AssetAlarmPM25      = "alarm-pm25-threshold"
	AssetAlarmPM10      = "alarm-pm10-threshold"
	AssetAlarmCooldown  = "alarm-cooldown"
	AssetHumidityOffset = "humidity-offset"
)

// Command is a remote configuration change addressed to one asset
type Command struct {
	Asset string          `json:"asset"`
	Value json.RawMessage `json:"value"`
}

// CommandPayload is the wire body of a command message
type CommandPayload struct {
	Value json.RawMessage `json:"value"`
}

// Settings is the durable device configuration
type Settings struct {
	PublishIntervalMinutes int         `json:"publish_interval_minutes"`
	AltitudeMeters         float64     `json:"altitude_meters"`
	Calibration            Calibration `json:"calibration"`
	AlarmEnabled           bool        `json:"alarm_enabled"`
	AlarmPM25Threshold     int         `json:"alarm_pm25_threshold"`
	AlarmPM10Threshold     int         `json:"alarm_pm10_threshold"`
	AlarmCooldownSeconds   int64       `json:"alarm_cooldown_sec"`
}
