package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Response sizes in bytes.
const (
	MicroVersionSize    = 58
	LogPartSize         = 58
	SerialNumberSize    = 58
	StatusSize          = 1
	I2CResultSize       = 3
	BrightnessSize      = 1
	HDMIStateSize       = 17
	EDIDStateSize       = 4
	DisplayStateSize    = 5
	IRStateSize         = 2
	FPGAVersionSize     = 48
	FPGAVersionSizeV1   = 16
	fpgaVersionTextSize = 16
)

// Decode interprets buf as the response of cmd.
//
// A buffer shorter than the schema cannot be safely interpreted and yields a
// MalformedResponseError, unless the schema declares a legacy layout that
// fits. A longer buffer is accepted: its prefix is decoded and the number of
// discarded trailing bytes is returned as truncated so the caller can report
// the drift. Newer firmware may append fields without breaking older clients.
func Decode(cmd Command, buf []byte) (resp Response, truncated int, err error) {
	if cmd.NewResponse == nil {
		return nil, 0, fmt.Errorf("%s has no response", cmd)
	}

	resp = cmd.NewResponse()
	size := resp.Size()

	if len(buf) < size {
		if legacy, ok := resp.(LegacyLayout); ok {
			for _, ls := range legacy.LegacySizes() {
				if len(buf) < ls {
					continue
				}
				if err := resp.UnmarshalBinary(buf[:ls]); err != nil {
					return nil, 0, err
				}
				return resp, len(buf) - ls, nil
			}
		}
		return nil, 0, &MalformedResponseError{
			Command: cmd.Op.String(),
			Got:     len(buf),
			Want:    size,
		}
	}

	if err := resp.UnmarshalBinary(buf[:size]); err != nil {
		return nil, 0, err
	}

	return resp, len(buf) - size, nil
}

// decodeString converts a fixed-width, NUL padded text field.
func decodeString(b []byte) string {
	return strings.Trim(strings.ToValidUTF8(string(b), "�"), "\x00")
}

func checkSize(name string, data []byte, sizes ...int) error {
	for _, s := range sizes {
		if len(data) == s {
			return nil
		}
	}
	return fmt.Errorf("invalid data length for %s response: got %d bytes, expected %d", name, len(data), sizes[0])
}

// MicroVersion is the controller firmware version.
//
// Data format (58 bytes):
//
//	[MAJOR(1)][MINOR(1)][GIT_VERSION(56)]
type MicroVersion struct {
	Major      uint8
	Minor      uint8
	GitVersion string
}

func (*MicroVersion) Size() int { return MicroVersionSize }

func (r *MicroVersion) UnmarshalBinary(data []byte) error {
	if err := checkSize("micro version", data, MicroVersionSize); err != nil {
		return err
	}
	r.Major = data[0]
	r.Minor = data[1]
	r.GitVersion = decodeString(data[2:])
	return nil
}

func (r *MicroVersion) String() string {
	return fmt.Sprintf("%d.%d (%s)", r.Major, r.Minor, r.GitVersion)
}

// LogPart is one chunk of the device-resident log.
//
// Data format (58 bytes):
//
//	[TEXT(58)]
//
// The device signals that the log has been drained by leaving the last byte
// NUL.
type LogPart struct {
	Text     string
	Finished bool
}

func (*LogPart) Size() int { return LogPartSize }

func (r *LogPart) UnmarshalBinary(data []byte) error {
	if err := checkSize("log part", data, LogPartSize); err != nil {
		return err
	}
	r.Text = decodeString(data)
	r.Finished = data[len(data)-1] == 0
	return nil
}

// SerialNumber is the controller's serial number.
//
// Data format (58 bytes):
//
//	[SERIAL(58)]
type SerialNumber struct {
	Serial string
}

func (*SerialNumber) Size() int { return SerialNumberSize }

func (r *SerialNumber) UnmarshalBinary(data []byte) error {
	if err := checkSize("serial number", data, SerialNumberSize); err != nil {
		return err
	}
	r.Serial = decodeString(data)
	return nil
}

// Status is the single status byte returned by simple commands.
type Status struct {
	Code byte
}

func (*Status) Size() int { return StatusSize }

func (r *Status) UnmarshalBinary(data []byte) error {
	if err := checkSize("status", data, StatusSize); err != nil {
		return err
	}
	r.Code = data[0]
	return nil
}

// OK reports whether the status indicates success.
func (r *Status) OK() bool { return r.Code == StatusOK }

// I2CResult is the answer to an I2C passthrough command.
//
// Data format (3 bytes):
//
//	[DEV_ADDR(1)][VALUE(2)]
type I2CResult struct {
	DevAddr uint8
	Value   uint16
}

func (*I2CResult) Size() int { return I2CResultSize }

func (r *I2CResult) UnmarshalBinary(data []byte) error {
	if err := checkSize("i2c", data, I2CResultSize); err != nil {
		return err
	}
	r.DevAddr = data[0]
	r.Value = binary.LittleEndian.Uint16(data[1:3])
	return nil
}

// Brightness is the display brightness after an adjustment.
type Brightness struct {
	Level uint8
}

func (*Brightness) Size() int { return BrightnessSize }

func (r *Brightness) UnmarshalBinary(data []byte) error {
	if err := checkSize("brightness", data, BrightnessSize); err != nil {
		return err
	}
	r.Level = data[0]
	return nil
}

// HDMIState describes the video input as seen by the display controller.
//
// Data format (17 bytes):
//
//	[LOCKED(1)][ACTIVE_W(2)][ACTIVE_H(2)][FPS(f32)][CLOCK(f32)][TOTAL_W(2)][TOTAL_H(2)]
type HDMIState struct {
	InputLocked  uint8
	ActiveWidth  uint16
	ActiveHeight uint16
	FPS          float32
	ClockFreq    float32
	TotalWidth   uint16
	TotalHeight  uint16
}

func (*HDMIState) Size() int { return HDMIStateSize }

func (r *HDMIState) UnmarshalBinary(data []byte) error {
	if err := checkSize("hdmi state", data, HDMIStateSize); err != nil {
		return err
	}
	r.InputLocked = data[0]
	r.ActiveWidth = binary.LittleEndian.Uint16(data[1:3])
	r.ActiveHeight = binary.LittleEndian.Uint16(data[3:5])
	r.FPS = math.Float32frombits(binary.LittleEndian.Uint32(data[5:9]))
	r.ClockFreq = math.Float32frombits(binary.LittleEndian.Uint32(data[9:13]))
	r.TotalWidth = binary.LittleEndian.Uint16(data[13:15])
	r.TotalHeight = binary.LittleEndian.Uint16(data[15:17])
	return nil
}

// EDIDState reports how the host has been reading the emulated EDID.
//
// Data format (4 bytes):
//
//	[START_CONDITIONS(2)][PAGE_ADDR_ACCESSED(1)][ERROR_FLAG(1)]
type EDIDState struct {
	NumStartConditions uint16
	PageAddrAccessed   uint8
	ErrorFlag          uint8
}

func (*EDIDState) Size() int { return EDIDStateSize }

func (r *EDIDState) UnmarshalBinary(data []byte) error {
	if err := checkSize("edid state", data, EDIDStateSize); err != nil {
		return err
	}
	r.NumStartConditions = binary.LittleEndian.Uint16(data[0:2])
	r.PageAddrAccessed = data[2]
	r.ErrorFlag = data[3]
	return nil
}

// DisplayState is the panel status and temperature reading.
//
// Data format (5 bytes):
//
//	[STATUS(1)][TEMPERATURE(4)]
type DisplayState struct {
	Status      uint8
	Temperature uint32
}

func (*DisplayState) Size() int { return DisplayStateSize }

func (r *DisplayState) UnmarshalBinary(data []byte) error {
	if err := checkSize("display state", data, DisplayStateSize); err != nil {
		return err
	}
	r.Status = data[0]
	r.Temperature = binary.LittleEndian.Uint32(data[1:5])
	return nil
}

// IRState is the IR module's state pair.
type IRState struct {
	Val1 uint8
	Val2 uint8
}

func (*IRState) Size() int { return IRStateSize }

func (r *IRState) UnmarshalBinary(data []byte) error {
	if err := checkSize("ir state", data, IRStateSize); err != nil {
		return err
	}
	r.Val1 = data[0]
	r.Val2 = data[1]
	return nil
}

// FPGAVersion is the version of the logic loaded in the FPGA.
//
// Data format (48 bytes, older firmware sends only the first 16):
//
//	[VERSION(16)][GIT_VERSION(32)]
//
// Fields are padded with NUL or space. An empty field is reported as "".
type FPGAVersion struct {
	Version    string
	GitVersion string
}

func (*FPGAVersion) Size() int { return FPGAVersionSize }

func (*FPGAVersion) LegacySizes() []int { return []int{FPGAVersionSizeV1} }

func (r *FPGAVersion) UnmarshalBinary(data []byte) error {
	if err := checkSize("fpga version", data, FPGAVersionSize, FPGAVersionSizeV1); err != nil {
		return err
	}
	r.Version = strings.Trim(decodeString(data[:fpgaVersionTextSize]), " ")
	r.GitVersion = ""
	if len(data) == FPGAVersionSize {
		r.GitVersion = strings.Trim(decodeString(data[fpgaVersionTextSize:]), " ")
	}
	return nil
}
