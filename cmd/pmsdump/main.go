// Command pmsdump prints particulate sensor frames read from a serial port
// or from a raw capture file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"air-monitor/internal/clock"
	"air-monitor/internal/pms"
)

func main() {
	var (
		level   string
		port    string
		baud    int
		file    string
		count   int
		passive bool
		asJSON  bool
	)
	flag.StringVar(&level, "level", "info", "Log level")
	flag.StringVar(&port, "port", "/dev/ttyS0", "Serial port of the sensor")
	flag.IntVar(&baud, "baud", pms.BaudRate, "Serial baud rate")
	flag.StringVar(&file, "file", "", "Decode a raw capture file instead of the serial port")
	flag.IntVar(&count, "count", 0, "Stop after this many frames, 0 runs until interrupted")
	flag.BoolVar(&passive, "passive", false, "Use passive mode and request each frame")
	flag.BoolVar(&asJSON, "json", false, "Print frames as JSON lines on stdout")
	flag.Parse()

	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Fatal("failed to parse log level", "level", level, "err", err)
	}

	printFrame := framePrinter(asJSON)

	if file != "" {
		decodeFile(file, printFrame)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stream, err := pms.OpenSerial(pms.SerialConfig{Name: port, Baud: baud})
	if err != nil {
		log.Fatal("failed to open serial port", "port", port, "err", err)
	}
	defer stream.Close()

	sensor := pms.NewSensor(stream)
	if err := sensor.WakeUp(); err != nil {
		log.Fatal("failed to wake sensor", "err", err)
	}
	setMode := sensor.ActiveMode
	if passive {
		setMode = sensor.PassiveMode
	}
	if err := setMode(); err != nil {
		log.Fatal("failed to set sensor mode", "passive", passive, "err", err)
	}
	log.Info("reading frames", "port", port, "baud", baud,
		"passive", sensor.Mode() == pms.ModePassive, "awake", sensor.Awake())

	clk := clock.NewSystem()
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()
	request := time.NewTicker(time.Second)
	defer request.Stop()

	frames := 0
loop:
	for count == 0 || frames < count {
		select {
		case <-ctx.Done():
			log.Info("interrupted")
			break loop
		case <-request.C:
			if passive {
				if err := sensor.RequestRead(); err != nil {
					log.Warn("read request failed", "err", err)
				}
			}
		case <-poll.C:
			if frame, ok := sensor.Poll(clk.Now()); ok {
				frames++
				printFrame(frame)
			}
		}
	}

	stats := sensor.Stats()
	log.Info("done", "frames", stats.Frames, "dropped", stats.Dropped(),
		"sync", stats.SyncErrors, "length", stats.LengthErrors,
		"checksum", stats.ChecksumErrors, "timeout", stats.Timeouts)
}

func decodeFile(path string, printFrame func(pms.RawFrame)) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatal("failed to open capture", "file", path, "err", err)
	}
	defer f.Close()

	stats, err := decodeCapture(f, printFrame)
	if err != nil {
		log.Error("capture read failed", "file", path, "err", err)
	}
	log.Info("done", "file", path, "frames", stats.Frames, "dropped", stats.Dropped(),
		"sync", stats.SyncErrors, "length", stats.LengthErrors, "checksum", stats.ChecksumErrors)
}

func framePrinter(asJSON bool) func(pms.RawFrame) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		return func(f pms.RawFrame) {
			if err := enc.Encode(f); err != nil {
				log.Error("failed to write frame", "err", err)
			}
		}
	}
	return func(f pms.RawFrame) {
		log.Info("frame",
			"pm1", f.PM1AE, "pm2.5", f.PM25AE, "pm10", f.PM10AE,
			">0.3", f.Count03, ">0.5", f.Count05, ">1.0", f.Count10,
			">2.5", f.Count25, ">5.0", f.Count50, ">10", f.Count100)
	}
}
