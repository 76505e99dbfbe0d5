package pms

import "encoding/binary"

// Command codes understood by the sensor
const (
	cmdChangeMode  = 0xE1
	cmdPassiveRead = 0xE2
	cmdSleep       = 0xE4
)

// CommandSize is the length of a host-to-sensor command frame
const CommandSize = 7

// Command builds a command frame: sync pair, command, 0x00, data, checksum.
func Command(cmd, data byte) [CommandSize]byte {
	frame := [CommandSize]byte{StartByte1, StartByte2, cmd, 0x00, data}
	binary.BigEndian.PutUint16(frame[5:], Checksum(frame[:5]))
	return frame
}

var (
	sleepCommand       = Command(cmdSleep, 0x00)
	wakeCommand        = Command(cmdSleep, 0x01)
	activeModeCommand  = Command(cmdChangeMode, 0x01)
	passiveModeCommand = Command(cmdChangeMode, 0x00)
	requestReadCommand = Command(cmdPassiveRead, 0x00)
)
