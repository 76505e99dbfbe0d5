package models

import "time"

// EnvSample is one raw reading from the environmental sensor driver
type EnvSample struct {
	Temperature float64 `json:"temperature"` // Celsius
	Humidity    float64 `json:"humidity"`    // Percentage 0-100
	Pressure    float64 `json:"pressure"`    // hPa
}

// Calibration holds user correction factors
type Calibration struct {
	PM25Factor        float64 `json:"pm25_factor" yaml:"pm25_factor"`
	PM10Factor        float64 `json:"pm10_factor" yaml:"pm10_factor"`
	TemperatureOffset float64 `json:"temperature_offset" yaml:"temperature_offset"` // Celsius, added to raw
	HumidityOffset    float64 `json:"humidity_offset" yaml:"humidity_offset"`       // percentage points, added to raw
}

// Calibration factor bounds, inclusive
const (
	MinCalibrationFactor = 0.1
	MaxCalibrationFactor = 10.0

	DefaultTemperatureOffset = -2.0
)

// DefaultCalibration applies no particulate scaling and the enclosure heat offset
func DefaultCalibration() Calibration {
	return Calibration{
		PM25Factor:        1.0,
		PM10Factor:        1.0,
		TemperatureOffset: DefaultTemperatureOffset,
	}
}

// Particulates is the conditioned output of the particulate channels
type Particulates struct {
	PM1  int `json:"pm1"`  // µg/m³
	PM25 int `json:"pm25"` // µg/m³
	PM10 int `json:"pm10"` // µg/m³

	// Particle counts per 0.1 L from the latest frame, not averaged
	Count03  int `json:"count_0_3"`
	Count05  int `json:"count_0_5"`
	Count10  int `json:"count_1_0"`
	Count25  int `json:"count_2_5"`
	Count50  int `json:"count_5_0"`
	Count100 int `json:"count_10_0"`
}

// Environment is the conditioned output of the environmental channels
type Environment struct {
	Temperature float64 `json:"temperature"` // Celsius
	Humidity    float64 `json:"humidity"`    // Percentage 0-100
	Pressure    float64 `json:"pressure"`    // hPa
}

// ConditionedReading is the filtered and calibrated state of both sensors.
// A stale half keeps its last values and is flagged.
type ConditionedReading struct {
	Particulates   Particulates `json:"particulates"`
	Environment    Environment  `json:"environment"`
	ParticlesStale bool         `json:"particles_stale"`
	EnvStale       bool         `json:"environment_stale"`
}

// DerivedReadings are recomputed every cycle from ConditionedReading
type DerivedReadings struct {
	Dewpoint         float64 `json:"dewpoint"`          // Celsius
	AbsoluteHumidity float64 `json:"absolute_humidity"` // g/m³
	HeatIndex        float64 `json:"heat_index"`        // Celsius
	SeaLevelPressure float64 `json:"sea_level_pressure"`
	PM1Corrected     int     `json:"pm1_corrected"`
	PM25Corrected    int     `json:"pm25_corrected"`
	PM10Corrected    int     `json:"pm10_corrected"`
}

// Snapshot is the externally visible state after a completed read cycle
type Snapshot struct {
	DeviceID     string             `json:"device_id"`
	Timestamp    time.Time          `json:"timestamp"`
	Cycle        uint64             `json:"cycle"`
	Reading      ConditionedReading `json:"reading"`
	Derived      DerivedReadings    `json:"derived"`
	AirQuality   AirQuality         `json:"air_quality"`
	PMStatus     SensorStatus       `json:"pm_status"`
	EnvStatus    SensorStatus       `json:"env_status"`
	Alarm        AlarmState         `json:"alarm"`
	FramesOK     uint32             `json:"frames_ok"`
	FramesDrop   uint32             `json:"frames_dropped"`
	DropsByCause map[string]uint32  `json:"drops_by_cause,omitempty"`
}
