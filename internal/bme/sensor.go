// Package bme reads a Bosch BME280 over I²C with periph.
package bme

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/devices/bmxx80"
	"periph.io/x/periph/host"

	"air-monitor/internal/models"
)

// Addresses are probed in order; the second is the SDO-high strap
var Addresses = []uint16{0x76, 0x77}

var (
	ErrNotFound       = errors.New("no BME280 found")
	ErrNotInitialized = errors.New("BME280 not initialized")
)

// Device is the part of *bmxx80.Dev used here
type Device interface {
	Sense(e *physic.Env) error
	Halt() error
}

// Config holds configuration for the sensor
type Config struct {
	// Bus is the I²C bus name; empty opens the first one
	Bus string
}

// Sensor is a BME280 found at one of Addresses
type Sensor struct {
	config Config
	bus    i2c.BusCloser
	dev    Device
	addr   uint16

	hostInit func() error
	openBus  func(name string) (i2c.BusCloser, error)
	probe    func(bus i2c.Bus, addr uint16) (Device, error)
}

// New creates an unopened sensor; call Init before Read
func New(config Config) *Sensor {
	return &Sensor{
		config: config,
		hostInit: func() error {
			_, err := host.Init()
			return err
		},
		openBus: i2creg.Open,
		probe: func(bus i2c.Bus, addr uint16) (Device, error) {
			return bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
		},
	}
}

// Init opens the bus and probes each address. It may be called again to
// re-initialize after the device went offline.
func (s *Sensor) Init() error {
	s.Close()

	if err := s.hostInit(); err != nil {
		return fmt.Errorf("failed to initialize periph host: %w", err)
	}
	bus, err := s.openBus(s.config.Bus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", s.config.Bus, err)
	}

	var lastErr error
	for _, addr := range Addresses {
		dev, err := s.probe(bus, addr)
		if err != nil {
			lastErr = err
			continue
		}
		s.bus, s.dev, s.addr = bus, dev, addr
		log.Infof("BME: sensor found at 0x%02X on %s", addr, bus)
		return nil
	}

	bus.Close()
	return errors.Wrapf(ErrNotFound, "addresses 0x%02X, 0x%02X: %v", Addresses[0], Addresses[1], lastErr)
}

// Read takes one forced measurement
func (s *Sensor) Read() (models.EnvSample, error) {
	if s.dev == nil {
		return models.EnvSample{}, ErrNotInitialized
	}
	var e physic.Env
	if err := s.dev.Sense(&e); err != nil {
		return models.EnvSample{}, fmt.Errorf("failed to read BME280 at 0x%02X: %w", s.addr, err)
	}
	return FromEnv(e), nil
}

// Address returns the address the sensor answered on, or 0
func (s *Sensor) Address() uint16 {
	return s.addr
}

// Close halts the device and releases the bus
func (s *Sensor) Close() error {
	var err error
	if s.dev != nil {
		err = s.dev.Halt()
	}
	if s.bus != nil {
		if cerr := s.bus.Close(); err == nil {
			err = cerr
		}
	}
	s.bus, s.dev, s.addr = nil, nil, 0
	return err
}

// FromEnv converts periph units to °C, %RH and hPa
func FromEnv(e physic.Env) models.EnvSample {
	return models.EnvSample{
		Temperature: float64(e.Temperature-physic.ZeroCelsius) / float64(physic.Celsius),
		Humidity:    float64(e.Humidity) / float64(physic.PercentRH),
		Pressure:    float64(e.Pressure) / float64(100*physic.Pascal),
	}
}
