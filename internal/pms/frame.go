package pms

import "encoding/binary"

// Wire format constants for the particulate sensor data frame
const (
	StartByte1 = 0x42
	StartByte2 = 0x4D

	FrameSize   = 32 // total bytes on the wire
	BodyLength  = 28 // declared length field value
	HeaderSize  = 4  // two sync bytes + length
	PayloadSize = 24 // twelve big-endian uint16 fields

	checksumOffset = FrameSize - 2

	// FrameTimeoutMillis is the longest gap allowed between two bytes of one frame
	FrameTimeoutMillis = 100
)

// RawFrame is one validated measurement frame.
// SP = standard particle (CF=1), AE = atmospheric environment, counts are per 0.1 L.
type RawFrame struct {
	PM1SP  uint16 `json:"pm1_sp"`
	PM25SP uint16 `json:"pm25_sp"`
	PM10SP uint16 `json:"pm10_sp"`

	PM1AE  uint16 `json:"pm1_ae"`
	PM25AE uint16 `json:"pm25_ae"`
	PM10AE uint16 `json:"pm10_ae"`

	Count03  uint16 `json:"count_0_3"`
	Count05  uint16 `json:"count_0_5"`
	Count10  uint16 `json:"count_1_0"`
	Count25  uint16 `json:"count_2_5"`
	Count50  uint16 `json:"count_5_0"`
	Count100 uint16 `json:"count_10_0"`
}

// frameFromBytes maps the payload of a checked frame onto RawFrame fields
func frameFromBytes(buf *[FrameSize]byte) RawFrame {
	p := buf[HeaderSize:]
	field := func(i int) uint16 {
		return binary.BigEndian.Uint16(p[i*2 : i*2+2])
	}

	return RawFrame{
		PM1SP:    field(0),
		PM25SP:   field(1),
		PM10SP:   field(2),
		PM1AE:    field(3),
		PM25AE:   field(4),
		PM10AE:   field(5),
		Count03:  field(6),
		Count05:  field(7),
		Count10:  field(8),
		Count25:  field(9),
		Count50:  field(10),
		Count100: field(11),
	}
}

// Encode builds a wire frame for f with a correct checksum.
// The two reserved payload bytes (26..27 of the body) are left zero.
func Encode(f RawFrame) [FrameSize]byte {
	var buf [FrameSize]byte
	buf[0] = StartByte1
	buf[1] = StartByte2
	binary.BigEndian.PutUint16(buf[2:4], BodyLength)

	fields := [...]uint16{
		f.PM1SP, f.PM25SP, f.PM10SP,
		f.PM1AE, f.PM25AE, f.PM10AE,
		f.Count03, f.Count05, f.Count10, f.Count25, f.Count50, f.Count100,
	}
	for i, v := range fields {
		binary.BigEndian.PutUint16(buf[HeaderSize+i*2:], v)
	}

	binary.BigEndian.PutUint16(buf[checksumOffset:], Checksum(buf[:checksumOffset]))
	return buf
}

// Checksum is the arithmetic byte sum modulo 65536
func Checksum(b []byte) uint16 {
	var sum uint16
	for _, c := range b {
		sum += uint16(c)
	}
	return sum
}
