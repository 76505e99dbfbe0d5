package led

import (
	"errors"
	"sync"
	"testing"
	"time"

	"periph.io/x/periph/conn/gpio"
)

type recordingPin struct {
	mu     sync.Mutex
	levels []gpio.Level
	err    error
}

func (p *recordingPin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.levels = append(p.levels, l)
	return nil
}

func (p *recordingPin) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.levels)
}

func TestBlinkSequenceActiveLow(t *testing.T) {
	pin := &recordingPin{}
	b := New(pin, Config{ActiveLow: true, Blinks: 3})
	var slept time.Duration
	b.sleep = func(d time.Duration) { slept += d }

	b.Indicate()
	b.Wait()

	want := []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High, gpio.Low, gpio.High}
	if len(pin.levels) != len(want) {
		t.Fatalf("levels = %v", pin.levels)
	}
	for i := range want {
		if pin.levels[i] != want[i] {
			t.Errorf("levels[%d] = %v, want %v", i, pin.levels[i], want[i])
		}
	}
	if slept != 6*DefaultPeriod {
		t.Errorf("slept %v", slept)
	}
}

func TestIndicateIgnoredWhileBlinking(t *testing.T) {
	pin := &recordingPin{}
	b := New(pin, Config{Blinks: 2})
	release := make(chan struct{})
	b.sleep = func(time.Duration) { <-release }

	b.Indicate()
	b.Indicate()
	close(release)
	b.Wait()

	if n := pin.count(); n != 4 {
		t.Errorf("wrote %d levels, want one sequence of 4", n)
	}

	// a new sequence may start once the first is done
	b.Indicate()
	b.Wait()
	if n := pin.count(); n != 8 {
		t.Errorf("wrote %d levels after second sequence", n)
	}
}

func TestBlinkStopsOnPinError(t *testing.T) {
	pin := &recordingPin{err: errors.New("gpio busy")}
	b := New(pin, Config{})
	b.sleep = func(time.Duration) { t.Error("slept after a failed write") }

	b.Indicate()
	b.Wait()
}

func TestDefaults(t *testing.T) {
	b := New(&recordingPin{}, Config{})
	if b.blinks != DefaultBlinks || b.period != DefaultPeriod || b.on != gpio.High {
		t.Errorf("defaults = %d %v %v", b.blinks, b.period, b.on)
	}
}
