// Package led drives the status LED through a periph GPIO pin.
package led

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

const (
	DefaultBlinks = 10
	DefaultPeriod = 100 * time.Millisecond
)

var ErrPinNotFound = errors.New("gpio pin not found")

// Output is the part of a GPIO pin the blinker drives
type Output interface {
	Out(l gpio.Level) error
}

type Config struct {
	Pin       string
	ActiveLow bool
	Blinks    int
	Period    time.Duration // on time, the off time is the same
}

// Blinker flashes the LED a fixed number of times per Indicate call
type Blinker struct {
	out    Output
	on     gpio.Level
	blinks int
	period time.Duration
	sleep  func(time.Duration)

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// Open resolves the named pin and leaves the LED off
func Open(cfg Config) (*Blinker, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	pin := gpioreg.ByName(cfg.Pin)
	if pin == nil {
		return nil, errors.Wrapf(ErrPinNotFound, "%q", cfg.Pin)
	}
	b := New(pin, cfg)
	if err := pin.Out(!b.on); err != nil {
		return nil, fmt.Errorf("failed to configure %s as output: %w", cfg.Pin, err)
	}
	log.Printf("LED: using pin %s", pin)
	return b, nil
}

// New wraps an already configured output
func New(out Output, cfg Config) *Blinker {
	if cfg.Blinks <= 0 {
		cfg.Blinks = DefaultBlinks
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	on := gpio.High
	if cfg.ActiveLow {
		on = gpio.Low
	}
	return &Blinker{
		out:    out,
		on:     on,
		blinks: cfg.Blinks,
		period: cfg.Period,
		sleep:  time.Sleep,
	}
}

// Indicate starts a blink sequence in the background. A call while a
// sequence is running is ignored.
func (b *Blinker) Indicate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.wg.Add(1)
	go b.blink()
}

func (b *Blinker) blink() {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	for i := 0; i < b.blinks; i++ {
		if err := b.out.Out(b.on); err != nil {
			log.Warnf("LED: %v", err)
			return
		}
		b.sleep(b.period)
		if err := b.out.Out(!b.on); err != nil {
			log.Warnf("LED: %v", err)
			return
		}
		b.sleep(b.period)
	}
}

// Wait blocks until a running sequence has finished
func (b *Blinker) Wait() {
	b.wg.Wait()
}
