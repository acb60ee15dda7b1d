package protocol

import (
	"encoding/binary"
	"fmt"
)

// FPGA flashing payload sizes.
const (
	// FPGAProgramHeaderSize is the per-chunk header: offset(4) + length(2).
	FPGAProgramHeaderSize = 6

	// MaxFPGAChunk is the largest bitstream chunk that fits in one
	// program command.
	MaxFPGAChunk = MaxTxSize - 1 - FPGAProgramHeaderSize
)

// Encode builds the wire form of a command:
//
//	[OPCODE][PAYLOAD...]
//
// Returns ErrCommandTooLarge if the result would exceed MaxTxSize.
func Encode(cmd Command, payload []byte) ([]byte, error) {
	if 1+len(payload) > MaxTxSize {
		return nil, fmt.Errorf("%s: %d bytes exceeds maximum %d: %w",
			cmd, 1+len(payload), MaxTxSize, ErrCommandTooLarge)
	}

	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, cmd.Opcode)
	frame = append(frame, payload...)

	return frame, nil
}

// I2CTarget names a peripheral on the display controller's internal buses
// that the I2C passthrough command can reach.
type I2CTarget struct {
	ID   uint8
	Name string
	// Pretty is a human readable label.
	Pretty string
}

// I2CTargets lists the passthrough peripherals in ID order.
var I2CTargets = []I2CTarget{
	{ID: 0, Name: "oled_display", Pretty: "OLED (Display)"},
	{ID: 1, Name: "oled_eeprom", Pretty: "OLED (EEPROM)"},
	{ID: 2, Name: "oled_io", Pretty: "OLED (IO)"},
	{ID: 3, Name: "fpga", Pretty: "FPGA"},
	{ID: 4, Name: "hdmi_io", Pretty: "HDMI (IO)"},
	{ID: 5, Name: "hdmi_hdmi", Pretty: "HDMI (HDMI)"},
	{ID: 6, Name: "hdmi_info_frame", Pretty: "HDMI (Info Frame)"},
}

// LookupI2CTarget finds a passthrough peripheral by name.
func LookupI2CTarget(name string) (I2CTarget, error) {
	for _, t := range I2CTargets {
		if t.Name == name {
			return t, nil
		}
	}
	return I2CTarget{}, fmt.Errorf("unknown i2c target %q", name)
}

// BuildI2CPayload constructs the I2C passthrough payload.
//
// Payload structure:
//
//	[WRITE(1)][TARGET(1)][REG_L][REG_H][VALUE_L][VALUE_H]
func BuildI2CPayload(write bool, target I2CTarget, reg, value uint16) []byte {
	payload := make([]byte, 6)
	if write {
		payload[0] = 1
	}
	payload[1] = target.ID
	binary.LittleEndian.PutUint16(payload[2:4], reg)
	binary.LittleEndian.PutUint16(payload[4:6], value)
	return payload
}

// BuildBrightnessPayload constructs the adjust-brightness payload: one
// signed step.
func BuildBrightnessPayload(step int8) []byte {
	return []byte{byte(step)}
}

// BuildDebugActionPayload constructs the debug-action payload.
func BuildDebugActionPayload(index uint8) []byte {
	return []byte{index}
}

// BuildFPGAStartPayload constructs the flash-start payload announcing the
// total bitstream length.
//
// Payload structure:
//
//	[TOTAL_LEN(4)]
func BuildFPGAStartPayload(total uint32) []byte {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, total)
	return payload
}

// BuildFPGAProgramPayload constructs one flash-program payload.
//
// Payload structure:
//
//	[OFFSET(4)][LEN(2)][DATA...]
func BuildFPGAProgramPayload(offset uint32, chunk []byte) ([]byte, error) {
	if len(chunk) == 0 {
		return nil, fmt.Errorf("chunk cannot be empty")
	}
	if len(chunk) > MaxFPGAChunk {
		return nil, fmt.Errorf("chunk length %d exceeds maximum %d bytes", len(chunk), MaxFPGAChunk)
	}

	payload := make([]byte, FPGAProgramHeaderSize, FPGAProgramHeaderSize+len(chunk))
	binary.LittleEndian.PutUint32(payload[0:4], offset)
	binary.LittleEndian.PutUint16(payload[4:6], uint16(len(chunk)))
	payload = append(payload, chunk...)

	return payload, nil
}
