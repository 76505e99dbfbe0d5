package models

import (
	"fmt"
	"time"
)

// SensorStatus is the health of one physical sensor
type SensorStatus uint8

const (
	StatusOK           SensorStatus = 0
	StatusInitializing SensorStatus = 1
	StatusOffline      SensorStatus = 2
	StatusFanStuck     SensorStatus = 3
	StatusZeroData     SensorStatus = 4
	StatusError        SensorStatus = 255
)

var sensorStatusNames = map[SensorStatus]string{
	StatusOK:           "ok",
	StatusInitializing: "initializing",
	StatusOffline:      "offline",
	StatusFanStuck:     "fan_stuck",
	StatusZeroData:     "zero_data",
	StatusError:        "error",
}

var sensorStatusByName = invert(sensorStatusNames)

func (s SensorStatus) String() string {
	if name, ok := sensorStatusNames[s]; ok {
		return name
	}
	return sensorStatusNames[StatusError]
}

// ParseSensorStatus is the inverse of String
func ParseSensorStatus(name string) (SensorStatus, error) {
	if s, ok := sensorStatusByName[name]; ok {
		return s, nil
	}
	return StatusError, fmt.Errorf("unknown sensor status %q", name)
}

func (s SensorStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SensorStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSensorStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Healthy reports whether readings from the sensor can be trusted as fresh
func (s SensorStatus) Healthy() bool {
	return s == StatusOK || s == StatusFanStuck || s == StatusZeroData
}

// AirQuality is the EAQI-style band of the PM10 concentration
type AirQuality uint8

const (
	AirExcellent AirQuality = iota
	AirGood
	AirAcceptable
	AirPolluted
	AirVeryPolluted
	AirUnknown AirQuality = 255
)

// PM10 band upper bounds in µg/m³, inclusive
const (
	AQIExcellentMax  = 20
	AQIGoodMax       = 40
	AQIAcceptableMax = 50
	AQIPollutedMax   = 100
)

var airQualityNames = map[AirQuality]string{
	AirExcellent:    "excellent",
	AirGood:         "good",
	AirAcceptable:   "acceptable",
	AirPolluted:     "polluted",
	AirVeryPolluted: "very_polluted",
	AirUnknown:      "unknown",
}

var airQualityByName = invert(airQualityNames)

// AirQualityFromPM10 classifies a conditioned PM10 value
func AirQualityFromPM10(pm10 int) AirQuality {
	switch {
	case pm10 <= AQIExcellentMax:
		return AirExcellent
	case pm10 <= AQIGoodMax:
		return AirGood
	case pm10 <= AQIAcceptableMax:
		return AirAcceptable
	case pm10 <= AQIPollutedMax:
		return AirPolluted
	default:
		return AirVeryPolluted
	}
}

func (q AirQuality) String() string {
	if name, ok := airQualityNames[q]; ok {
		return name
	}
	return airQualityNames[AirUnknown]
}

func ParseAirQuality(name string) (AirQuality, error) {
	if q, ok := airQualityByName[name]; ok {
		return q, nil
	}
	return AirUnknown, fmt.Errorf("unknown air quality %q", name)
}

func (q AirQuality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *AirQuality) UnmarshalText(text []byte) error {
	parsed, err := ParseAirQuality(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// NeedsHealthWarning is true for the polluted bands
func (q AirQuality) NeedsHealthWarning() bool {
	return q == AirPolluted || q == AirVeryPolluted
}

func invert[K comparable](m map[K]string) map[string]K {
	out := make(map[string]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// StatusChange records one sensor status transition
type StatusChange struct {
	DeviceID  string       `json:"device_id"`
	Sensor    string       `json:"sensor"`
	From      SensorStatus `json:"from"`
	To        SensorStatus `json:"to"`
	Timestamp time.Time    `json:"timestamp"`
}
