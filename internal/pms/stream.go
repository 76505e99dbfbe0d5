package pms

import (
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// Stream is a non-blocking byte link to the sensor
type Stream interface {
	// Available returns how many bytes can be read without blocking
	Available() int
	// ReadByte returns the next buffered byte or io.EOF when none is buffered
	ReadByte() (byte, error)
	Write(p []byte) (int, error)
}

// BaudRate is the sensor's fixed UART speed
const BaudRate = 9600

// SerialStream adapts a blocking serial port to Stream.
// A reader goroutine moves received bytes into a bounded buffer; when the
// buffer is full the oldest input is lost, which the decoder treats as a
// broken frame.
type SerialStream struct {
	port io.ReadWriteCloser
	rx   chan byte

	closeOnce sync.Once
	done      chan struct{}
}

// SerialConfig holds the serial link settings
type SerialConfig struct {
	Name       string
	Baud       int
	BufferSize int
}

// OpenSerial opens the named port and starts the background reader
func OpenSerial(config SerialConfig) (*SerialStream, error) {
	if config.Baud == 0 {
		config.Baud = BaudRate
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 4 * FrameSize
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        config.Name,
		Baud:        config.Baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", config.Name, err)
	}

	log.Printf("PMS: serial port %s opened at %d baud", config.Name, config.Baud)
	return NewSerialStream(port, config.BufferSize), nil
}

// NewSerialStream wraps an already opened port
func NewSerialStream(port io.ReadWriteCloser, bufferSize int) *SerialStream {
	s := &SerialStream{
		port: port,
		rx:   make(chan byte, bufferSize),
		done: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *SerialStream) readLoop() {
	buf := make([]byte, FrameSize)
	for {
		n, err := s.port.Read(buf)
		for i := 0; i < n; i++ {
			select {
			case s.rx <- buf[i]:
			case <-s.done:
				return
			default:
				log.Debugf("PMS: receive buffer full, dropping byte")
			}
		}

		if err != nil && err != io.EOF {
			select {
			case <-s.done:
				return
			default:
			}
			log.Warnf("PMS: serial read error: %v", err)
			time.Sleep(100 * time.Millisecond)
		}

		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *SerialStream) Available() int {
	return len(s.rx)
}

func (s *SerialStream) ReadByte() (byte, error) {
	select {
	case b := <-s.rx:
		return b, nil
	default:
		return 0, io.EOF
	}
}

func (s *SerialStream) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Close stops the reader and closes the port
func (s *SerialStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.port.Close()
	})
	return err
}
