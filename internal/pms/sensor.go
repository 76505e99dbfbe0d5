package pms

import (
	"fmt"

	"air-monitor/internal/clock"
)

// Mode is the sensor's reporting mode
type Mode uint8

const (
	ModeActive Mode = iota
	ModePassive
)

// ResponseTimeoutMillis bounds how long a requested frame may take to arrive
const ResponseTimeoutMillis = 1000

// Sensor drives a particulate sensor over a Stream.
// Poll must be called repeatedly; it only consumes bytes already buffered.
type Sensor struct {
	stream  Stream
	decoder *Decoder
	mode    Mode
	awake   bool
}

// NewSensor wraps a stream. The sensor powers up in active mode.
func NewSensor(stream Stream) *Sensor {
	return &Sensor{
		stream:  stream,
		decoder: NewDecoder(),
		mode:    ModeActive,
		awake:   true,
	}
}

// Init wakes the sensor and switches it to passive (request/response) mode
func (s *Sensor) Init() error {
	if err := s.WakeUp(); err != nil {
		return err
	}
	return s.PassiveMode()
}

func (s *Sensor) WakeUp() error {
	if err := s.send(wakeCommand); err != nil {
		return err
	}
	s.awake = true
	return nil
}

func (s *Sensor) Sleep() error {
	if err := s.send(sleepCommand); err != nil {
		return err
	}
	s.awake = false
	return nil
}

func (s *Sensor) ActiveMode() error {
	if err := s.send(activeModeCommand); err != nil {
		return err
	}
	s.mode = ModeActive
	return nil
}

func (s *Sensor) PassiveMode() error {
	if err := s.send(passiveModeCommand); err != nil {
		return err
	}
	s.mode = ModePassive
	return nil
}

// RequestRead asks for one frame. In active mode the sensor streams on its own
// and nothing is sent.
func (s *Sensor) RequestRead() error {
	if s.mode != ModePassive {
		return nil
	}
	return s.send(requestReadCommand)
}

// Awake reports the last commanded power state
func (s *Sensor) Awake() bool {
	return s.awake
}

func (s *Sensor) Mode() Mode {
	return s.mode
}

// Flush discards buffered input and any partial frame
func (s *Sensor) Flush() {
	for s.stream.Available() > 0 {
		if _, err := s.stream.ReadByte(); err != nil {
			break
		}
	}
	s.decoder.Reset()
}

// Poll feeds every buffered byte to the decoder and stops at the first complete frame.
func (s *Sensor) Poll(now clock.Millis) (RawFrame, bool) {
	for s.stream.Available() > 0 {
		b, err := s.stream.ReadByte()
		if err != nil {
			return RawFrame{}, false
		}
		if frame, ok := s.decoder.Feed(b, now); ok {
			return frame, true
		}
	}
	return RawFrame{}, false
}

func (s *Sensor) Stats() DecoderStats {
	return s.decoder.Stats()
}

func (s *Sensor) send(cmd [CommandSize]byte) error {
	if _, err := s.stream.Write(cmd[:]); err != nil {
		return fmt.Errorf("failed to send command 0x%02X: %w", cmd[2], err)
	}
	return nil
}
