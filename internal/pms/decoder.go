package pms

import (
	"encoding/binary"

	"air-monitor/internal/clock"
)

// DropReason explains why a partially received frame was discarded
type DropReason uint8

const (
	DropNone DropReason = iota
	DropSync
	DropLength
	DropChecksum
	DropTimeout
)

var dropReasonNames = [...]string{
	DropNone:     "none",
	DropSync:     "sync",
	DropLength:   "length",
	DropChecksum: "checksum",
	DropTimeout:  "timeout",
}

func (r DropReason) String() string {
	if int(r) < len(dropReasonNames) {
		return dropReasonNames[r]
	}
	return "unknown"
}

// DecoderStats counts decoder outcomes since construction
type DecoderStats struct {
	Frames         uint32 `json:"frames"`
	SyncErrors     uint32 `json:"sync_errors"`
	LengthErrors   uint32 `json:"length_errors"`
	ChecksumErrors uint32 `json:"checksum_errors"`
	Timeouts       uint32 `json:"timeouts"`
}

// Dropped is the total number of discarded partial frames
func (s DecoderStats) Dropped() uint32 {
	return s.SyncErrors + s.LengthErrors + s.ChecksumErrors + s.Timeouts
}

// ByCause keys the drop counters by DropReason name
func (s DecoderStats) ByCause() map[string]uint32 {
	return map[string]uint32{
		DropSync.String():     s.SyncErrors,
		DropLength.String():   s.LengthErrors,
		DropChecksum.String(): s.ChecksumErrors,
		DropTimeout.String():  s.Timeouts,
	}
}

// Decoder is a byte-at-a-time parser for the 32 byte data frame.
// It never blocks and never exposes a partial frame.
type Decoder struct {
	buf      [FrameSize]byte
	index    int
	sum      uint16
	lastByte clock.Millis

	stats      DecoderStats
	lastReason DropReason
}

// NewDecoder returns a decoder waiting for the first sync byte
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes one byte received at now and returns a frame when b completes a valid one.
func (d *Decoder) Feed(b byte, now clock.Millis) (RawFrame, bool) {
	if d.index > 0 && clock.Elapsed(now, d.lastByte) > FrameTimeoutMillis {
		d.drop(DropTimeout)
	}
	d.lastByte = now

	switch {
	case d.index == 0:
		if b != StartByte1 {
			return RawFrame{}, false
		}
		d.sum = uint16(b)

	case d.index == 1:
		if b != StartByte2 {
			d.drop(DropSync)
			if b == StartByte1 {
				// this byte may open the next frame
				d.sum = uint16(b)
				d.buf[0] = b
				d.index = 1
			}
			return RawFrame{}, false
		}
		d.sum += uint16(b)

	case d.index == 3:
		d.sum += uint16(b)
		if binary.BigEndian.Uint16([]byte{d.buf[2], b}) != BodyLength {
			d.drop(DropLength)
			return RawFrame{}, false
		}

	case d.index < checksumOffset:
		d.sum += uint16(b)

	case d.index == FrameSize-1:
		d.buf[d.index] = b
		want := binary.BigEndian.Uint16(d.buf[checksumOffset:])
		if want != d.sum {
			d.drop(DropChecksum)
			return RawFrame{}, false
		}
		frame := frameFromBytes(&d.buf)
		d.stats.Frames++
		d.reset()
		return frame, true
	}

	d.buf[d.index] = b
	d.index++
	return RawFrame{}, false
}

// Pending reports whether a frame is partially received
func (d *Decoder) Pending() bool {
	return d.index > 0
}

// Reset discards any partial frame without counting it as a drop
func (d *Decoder) Reset() {
	d.reset()
}

func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// LastDrop returns the reason of the most recent discarded frame
func (d *Decoder) LastDrop() DropReason {
	return d.lastReason
}

func (d *Decoder) drop(reason DropReason) {
	switch reason {
	case DropSync:
		d.stats.SyncErrors++
	case DropLength:
		d.stats.LengthErrors++
	case DropChecksum:
		d.stats.ChecksumErrors++
	case DropTimeout:
		d.stats.Timeouts++
	}
	d.lastReason = reason
	d.reset()
}

func (d *Decoder) reset() {
	d.index = 0
	d.sum = 0
}
