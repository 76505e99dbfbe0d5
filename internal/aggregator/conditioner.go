package aggregator

import (
	"math"

	"github.com/pkg/errors"

	"air-monitor/internal/models"
	"air-monitor/internal/pms"
)

// Channel identifies one averaged signal
type Channel int

const (
	ChannelPM1 Channel = iota
	ChannelPM25
	ChannelPM10
	ChannelTemperature
	ChannelHumidity
	ChannelPressure

	channelCount
)

var channelNames = [channelCount]string{"pm1", "pm2.5", "pm10", "temperature", "humidity", "pressure"}

func (c Channel) String() string {
	if c >= 0 && c < channelCount {
		return channelNames[c]
	}
	return "unknown"
}

// Environmental channels keep two decimals as fixed point
const envScale = 100

// Magnus-Tetens constants
const (
	MagnusBeta  = 17.62
	MagnusGamma = 243.12
)

// ErrCalibrationRange is returned for factors outside [0.1, 10.0] or non-finite offsets
var ErrCalibrationRange = errors.New("calibration value out of range")

// Conditioner owns one Window per channel plus the active calibration.
type Conditioner struct {
	windows     [channelCount]Window
	calibration models.Calibration
}

// NewConditioner builds windows of the given size. An invalid calibration is
// rejected and the default one used instead.
func NewConditioner(windowSize int, cal models.Calibration) (*Conditioner, error) {
	c := &Conditioner{calibration: models.DefaultCalibration()}
	for i := range c.windows {
		c.windows[i] = NewWindow(windowSize)
	}
	if err := c.SetCalibration(cal); err != nil {
		return c, err
	}
	return c, nil
}

// ConditionParticulates averages the atmospheric PM fields of f and applies
// the PM2.5/PM10 factors. Particle counts are passed through.
func (c *Conditioner) ConditionParticulates(f pms.RawFrame) models.Particulates {
	out := models.Particulates{
		PM1:      int(c.windows[ChannelPM1].Reading(int64(f.PM1AE))),
		PM25:     int(c.windows[ChannelPM25].Reading(int64(f.PM25AE))),
		PM10:     int(c.windows[ChannelPM10].Reading(int64(f.PM10AE))),
		Count03:  int(f.Count03),
		Count05:  int(f.Count05),
		Count10:  int(f.Count10),
		Count25:  int(f.Count25),
		Count50:  int(f.Count50),
		Count100: int(f.Count100),
	}

	if c.calibration.PM25Factor != 1.0 {
		out.PM25 = int(float64(out.PM25) * c.calibration.PM25Factor)
	}
	if c.calibration.PM10Factor != 1.0 {
		out.PM10 = int(float64(out.PM10) * c.calibration.PM10Factor)
	}
	return out
}

// ConditionEnvironment applies offsets to the raw sample, compensates
// humidity for the temperature shift, then averages.
func (c *Conditioner) ConditionEnvironment(raw models.EnvSample) models.Environment {
	temperature := raw.Temperature + c.calibration.TemperatureOffset
	humidity := CompensateHumidity(raw.Humidity, raw.Temperature, temperature) + c.calibration.HumidityOffset
	humidity = clamp(humidity, 0, 100)

	return models.Environment{
		Temperature: c.average(ChannelTemperature, temperature),
		Humidity:    c.average(ChannelHumidity, humidity),
		Pressure:    c.average(ChannelPressure, raw.Pressure),
	}
}

func (c *Conditioner) average(ch Channel, v float64) float64 {
	fixed := int64(math.Round(v * envScale))
	return float64(c.windows[ch].Reading(fixed)) / envScale
}

// ResetParticulates clears the PM windows
func (c *Conditioner) ResetParticulates() {
	c.windows[ChannelPM1].Reset()
	c.windows[ChannelPM25].Reset()
	c.windows[ChannelPM10].Reset()
}

// ResetEnvironment clears the temperature, humidity and pressure windows
func (c *Conditioner) ResetEnvironment() {
	c.windows[ChannelTemperature].Reset()
	c.windows[ChannelHumidity].Reset()
	c.windows[ChannelPressure].Reset()
}

// Filled returns how many samples a channel currently holds
func (c *Conditioner) Filled(ch Channel) int {
	return c.windows[ch].Len()
}

func (c *Conditioner) Calibration() models.Calibration {
	return c.calibration
}

// SetCalibration replaces the calibration only if every field is valid
func (c *Conditioner) SetCalibration(cal models.Calibration) error {
	if err := ValidateFactor(cal.PM25Factor); err != nil {
		return errors.Wrap(err, "pm2.5 factor")
	}
	if err := ValidateFactor(cal.PM10Factor); err != nil {
		return errors.Wrap(err, "pm10 factor")
	}
	if !finite(cal.TemperatureOffset) || !finite(cal.HumidityOffset) {
		return errors.Wrap(ErrCalibrationRange, "offset")
	}
	c.calibration = cal
	return nil
}

// SetFactors updates both particulate factors together
func (c *Conditioner) SetFactors(pm25, pm10 float64) error {
	cal := c.calibration
	cal.PM25Factor = pm25
	cal.PM10Factor = pm10
	return c.SetCalibration(cal)
}

func (c *Conditioner) SetTemperatureOffset(offset float64) error {
	cal := c.calibration
	cal.TemperatureOffset = offset
	return c.SetCalibration(cal)
}

func (c *Conditioner) SetHumidityOffset(offset float64) error {
	cal := c.calibration
	cal.HumidityOffset = offset
	return c.SetCalibration(cal)
}

// ValidateFactor checks a particulate factor against [0.1, 10.0]
func ValidateFactor(f float64) error {
	if !finite(f) || f < models.MinCalibrationFactor || f > models.MaxCalibrationFactor {
		return errors.Wrapf(ErrCalibrationRange, "factor %v not in [%v, %v]",
			f, models.MinCalibrationFactor, models.MaxCalibrationFactor)
	}
	return nil
}

// CompensateHumidity corrects relative humidity measured at rawTemp for a
// sensor reading shifted to correctedTemp.
func CompensateHumidity(rawHumidity, rawTemp, correctedTemp float64) float64 {
	return rawHumidity * math.Exp(MagnusGamma*MagnusBeta*(rawTemp-correctedTemp)/
		((MagnusGamma+rawTemp)*(MagnusGamma+correctedTemp)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
