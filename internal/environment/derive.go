// Package environment computes derived comfort and correction values from
// conditioned readings. Everything here is a pure function.
package environment

import (
	"math"

	"air-monitor/internal/models"
)

// Magnus-Tetens constants over water
const (
	MagnusBeta  = 17.62
	MagnusGamma = 243.12
)

const (
	minDewpointHumidity = 0.1

	// heat index blends towards the regression across [HeatIndexBlendStart, HeatIndexFull)
	HeatIndexBlendStart = 20.0
	HeatIndexFull       = 26.7

	standardLapse    = 44330.0
	barometricPower  = 5.255
	kelvinOffset     = 273.15
	saturationVapour = 6.112 // hPa at 0 °C
	vapourDensity    = 2.1674
)

// Rothfusz regression coefficients for Celsius input
var rothfusz = [9]float64{
	-8.78469475556,
	1.61139411,
	2.33854883889,
	-0.14611605,
	-0.012308094,
	-0.0164248277778,
	0.002211732,
	0.00072546,
	-0.000003582,
}

// Dewpoint returns the Magnus-Tetens dewpoint in Celsius.
// Humidity below 0.1 % is raised to 0.1 to keep the logarithm finite.
func Dewpoint(temperature, humidity float64) float64 {
	if humidity < minDewpointHumidity {
		humidity = minDewpointHumidity
	}
	gamma := MagnusBeta*temperature/(MagnusGamma+temperature) + math.Log(humidity/100)
	return MagnusGamma * gamma / (MagnusBeta - gamma)
}

// AbsoluteHumidity returns water vapour density in g/m³
func AbsoluteHumidity(temperature, humidity float64) float64 {
	return saturationVapour * math.Exp(MagnusBeta*temperature/(MagnusGamma+temperature)) *
		humidity * vapourDensity / (kelvinOffset + temperature)
}

// SeaLevelPressure reduces station pressure to sea level. A non-positive
// altitude means none is configured and the pressure is returned unchanged.
func SeaLevelPressure(pressure, altitude float64) float64 {
	if altitude <= 0 {
		return pressure
	}
	return pressure / math.Pow(1-altitude/standardLapse, barometricPower)
}

// HeatIndex returns the apparent temperature in Celsius
func HeatIndex(temperature, humidity float64) float64 {
	switch {
	case temperature < HeatIndexBlendStart:
		return temperature
	case temperature >= HeatIndexFull:
		return regression(temperature, humidity)
	}
	w := (temperature - HeatIndexBlendStart) / (HeatIndexFull - HeatIndexBlendStart)
	return temperature*(1-w) + regression(temperature, humidity)*w
}

func regression(t, rh float64) float64 {
	c := rothfusz
	return c[0] + c[1]*t + c[2]*rh + c[3]*t*rh + c[4]*t*t + c[5]*rh*rh +
		c[6]*t*t*rh + c[7]*t*rh*rh + c[8]*t*t*rh*rh
}

// HumidityFactor is the EPA piecewise-linear de-rating for optical particle counters
func HumidityFactor(humidity float64) float64 {
	switch {
	case humidity <= 30:
		return 1.0
	case humidity <= 50:
		return 1.0 + 0.005*(humidity-30)
	case humidity <= 70:
		return 1.1 + 0.01*(humidity-50)
	case humidity <= 90:
		return 1.3 + 0.02*(humidity-70)
	default:
		return 1.7 + 0.03*(humidity-90)
	}
}

// CorrectPM divides a particulate concentration by the humidity factor, truncating
func CorrectPM(raw int, humidity float64) int {
	return int(float64(raw) / HumidityFactor(humidity))
}

// Derive computes every derived value for one cycle
func Derive(env models.Environment, pm models.Particulates, altitude float64) models.DerivedReadings {
	return models.DerivedReadings{
		Dewpoint:         Dewpoint(env.Temperature, env.Humidity),
		AbsoluteHumidity: AbsoluteHumidity(env.Temperature, env.Humidity),
		HeatIndex:        HeatIndex(env.Temperature, env.Humidity),
		SeaLevelPressure: SeaLevelPressure(env.Pressure, altitude),
		PM1Corrected:     CorrectPM(pm.PM1, env.Humidity),
		PM25Corrected:    CorrectPM(pm.PM25, env.Humidity),
		PM10Corrected:    CorrectPM(pm.PM10, env.Humidity),
	}
}
