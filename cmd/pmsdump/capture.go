package main

import (
	"bufio"
	"io"

	"github.com/charmbracelet/log"

	"air-monitor/internal/clock"
	"air-monitor/internal/pms"
)

// decodeCapture feeds a recorded byte stream through the frame decoder.
// Captures carry no timing, so inter-byte timeouts never fire.
func decodeCapture(r io.Reader, emit func(pms.RawFrame)) (pms.DecoderStats, error) {
	dec := pms.NewDecoder()
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			if dec.Pending() {
				log.Warn("capture ends inside a frame")
			}
			return dec.Stats(), nil
		}
		if err != nil {
			return dec.Stats(), err
		}
		dropped := dec.Stats().Dropped()
		if frame, ok := dec.Feed(b, clock.Millis(0)); ok {
			emit(frame)
		} else if dec.Stats().Dropped() > dropped {
			log.Debug("frame dropped", "reason", dec.LastDrop())
		}
	}
}
