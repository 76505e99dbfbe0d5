package aggregator

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"air-monitor/internal/models"
	"air-monitor/internal/pms"
)

func TestWindowConstantInput(t *testing.T) {
	w := NewWindow(10)
	var got int64
	for i := 0; i < 10; i++ {
		got = w.Reading(37)
	}
	if got != 37 {
		t.Errorf("mean of ten 37s = %d, want 37", got)
	}
	if w.Len() != w.Size() {
		t.Errorf("window should be full after ten samples")
	}
}

func TestWindowNineZerosThenHundred(t *testing.T) {
	w := NewWindow(10)
	for i := 0; i < 9; i++ {
		w.Reading(0)
	}
	if got := w.Reading(100); got != 10 {
		t.Errorf("mean = %d, want 10", got)
	}
}

func TestWindowPartialMeanAndEviction(t *testing.T) {
	w := NewWindow(3)
	if got := w.Reading(3); got != 3 {
		t.Errorf("first sample mean = %d, want 3", got)
	}
	if got := w.Reading(6); got != 5 { // 4.5 rounds away from zero
		t.Errorf("partial mean = %d, want 5", got)
	}
	w.Reading(9)
	if got := w.Reading(12); got != 9 { // 6, 9, 12
		t.Errorf("after eviction mean = %d, want 9", got)
	}
	if w.Len() != 3 {
		t.Errorf("Len = %d, want 3", w.Len())
	}
}

func TestWindowReset(t *testing.T) {
	w := NewWindow(10)
	for i := 0; i < 10; i++ {
		w.Reading(500)
	}
	w.Reset()
	if w.Len() != 0 || w.Mean() != 0 {
		t.Fatalf("Reset left %d samples, mean %d", w.Len(), w.Mean())
	}
	if got := w.Reading(4); got != 4 {
		t.Errorf("post-reset mean = %d, want 4 (history must not blend)", got)
	}
}

func TestWindowSizeClamped(t *testing.T) {
	small, large := NewWindow(0), NewWindow(100)
	if small.Size() != 1 || large.Size() != MaxWindowSize {
		t.Errorf("window size not clamped: %d, %d", small.Size(), large.Size())
	}
}

func TestConditionParticulatesUsesAtmosphericFields(t *testing.T) {
	c, err := NewConditioner(10, models.Calibration{PM25Factor: 1, PM10Factor: 1})
	if err != nil {
		t.Fatal(err)
	}
	out := c.ConditionParticulates(pms.RawFrame{PM1SP: 99, PM1AE: 5, PM25AE: 8, PM10AE: 12, Count03: 700})
	if out.PM1 != 5 || out.PM25 != 8 || out.PM10 != 12 {
		t.Errorf("conditioned %+v", out)
	}
	if out.Count03 != 700 {
		t.Errorf("particle counts should pass through, got %d", out.Count03)
	}
}

func TestConditionParticulatesAppliesFactorsAfterAveraging(t *testing.T) {
	c, err := NewConditioner(10, models.Calibration{PM25Factor: 1.5, PM10Factor: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	c.ConditionParticulates(pms.RawFrame{PM1AE: 10, PM25AE: 10, PM10AE: 11})
	out := c.ConditionParticulates(pms.RawFrame{PM1AE: 10, PM25AE: 20, PM10AE: 11})

	if out.PM25 != 22 { // mean 15 * 1.5 = 22.5 truncated
		t.Errorf("PM25 = %d, want 22", out.PM25)
	}
	if out.PM10 != 5 { // mean 11 * 0.5 = 5.5 truncated
		t.Errorf("PM10 = %d, want 5", out.PM10)
	}
	if out.PM1 != 10 {
		t.Errorf("PM1 has no factor, got %d", out.PM1)
	}
}

func TestConditionEnvironmentOffsetsBeforeAveraging(t *testing.T) {
	c, err := NewConditioner(10, models.Calibration{PM25Factor: 1, PM10Factor: 1, TemperatureOffset: -2})
	if err != nil {
		t.Fatal(err)
	}
	env := c.ConditionEnvironment(models.EnvSample{Temperature: 25, Humidity: 50, Pressure: 1013.25})

	if env.Temperature != 23 {
		t.Errorf("Temperature = %v, want 23", env.Temperature)
	}
	if math.Abs(env.Humidity-56.38) > 0.005 {
		t.Errorf("Humidity = %v, want ~56.38 after compensation", env.Humidity)
	}
	if env.Pressure != 1013.25 {
		t.Errorf("Pressure = %v, want 1013.25", env.Pressure)
	}
}

func TestConditionEnvironmentClampsHumidity(t *testing.T) {
	c, err := NewConditioner(10, models.Calibration{PM25Factor: 1, PM10Factor: 1, TemperatureOffset: -5, HumidityOffset: 10})
	if err != nil {
		t.Fatal(err)
	}
	env := c.ConditionEnvironment(models.EnvSample{Temperature: 20, Humidity: 98, Pressure: 1000})
	if env.Humidity != 100 {
		t.Errorf("Humidity = %v, want clamp to 100", env.Humidity)
	}
}

func TestResetParticulatesLeavesEnvironment(t *testing.T) {
	c, _ := NewConditioner(10, models.DefaultCalibration())
	c.ConditionParticulates(pms.RawFrame{PM1AE: 1, PM25AE: 1, PM10AE: 1})
	c.ConditionEnvironment(models.EnvSample{Temperature: 20, Humidity: 40, Pressure: 1000})

	c.ResetParticulates()
	if c.Filled(ChannelPM25) != 0 {
		t.Errorf("PM window not cleared")
	}
	if c.Filled(ChannelTemperature) != 1 {
		t.Errorf("environment window should be untouched")
	}
}

func TestSetCalibrationRejectsOutOfRange(t *testing.T) {
	c, _ := NewConditioner(10, models.DefaultCalibration())
	before := c.Calibration()

	for _, f := range []float64{0.09, 10.01, math.NaN(), math.Inf(1)} {
		err := c.SetFactors(f, 1)
		if !errors.Is(err, ErrCalibrationRange) {
			t.Errorf("SetFactors(%v) err = %v, want ErrCalibrationRange", f, err)
		}
	}
	if c.Calibration() != before {
		t.Errorf("rejected update changed calibration: %+v", c.Calibration())
	}

	if err := c.SetFactors(0.1, 10.0); err != nil {
		t.Errorf("bounds are inclusive, got %v", err)
	}
}

func TestNewConditionerFallsBackOnInvalidCalibration(t *testing.T) {
	c, err := NewConditioner(10, models.Calibration{PM25Factor: 0, PM10Factor: 1})
	if err == nil {
		t.Fatal("expected error for zero factor")
	}
	if c.Calibration() != models.DefaultCalibration() {
		t.Errorf("expected default calibration, got %+v", c.Calibration())
	}
}

func TestCompensateHumidityIdentity(t *testing.T) {
	if got := CompensateHumidity(47.5, 21, 21); got != 47.5 {
		t.Errorf("no temperature shift should leave humidity unchanged, got %v", got)
	}
}
