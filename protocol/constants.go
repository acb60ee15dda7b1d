package protocol

import "fmt"

// APIVersion is the command channel version carried in every transport header.
const APIVersion = 1

// Framing limits shared by every transport.
const (
	// MaxTxSize is the largest encoded command (opcode plus payload) a device
	// accepts. Bounded by the HID backend's 512-byte reassembly buffer minus
	// one report.
	MaxTxSize = 448

	// HeaderSize is the size of the transport header that precedes a payload:
	// version(2) + payload length(2).
	HeaderSize = 4
)

// StatusOK is the only success value of a Status response.
const StatusOK = 0x00

// USB identities of the supported hardware.
const (
	// VendorID is the USB vendor ID of every device family in operating mode.
	VendorID = 0x2DC4

	// ProductIDDisplay is the display controller's product ID.
	ProductIDDisplay = 0x0252

	// ProductIDIR is the IR module's product ID.
	ProductIDIR = 0x002A

	// DefaultI2CAddress is the 7-bit address the controllers answer on when
	// reached over the DDC pins.
	DefaultI2CAddress = 0x37
)

// Op identifies an operation independently of the opcode a given device
// family assigns to it.
type Op int

const (
	OpVersion Op = iota + 1
	OpRebootFirmware
	OpRebootBootloader
	OpReadLog
	OpSerialNumber
	OpFPGAVersion
	OpFPGAFlashStart
	OpFPGAFlashProgram
	OpFPGAFlashEnd
	OpAdjustBrightness
	OpI2C
	OpHDMIState
	OpDisplayState
	OpEDIDState
	OpDebugAction
	OpIRState
)

var opNames = map[Op]string{
	OpVersion:          "version",
	OpRebootFirmware:   "reboot firmware",
	OpRebootBootloader: "reboot bootloader",
	OpReadLog:          "read log",
	OpSerialNumber:     "serial number",
	OpFPGAVersion:      "fpga version",
	OpFPGAFlashStart:   "fpga flash start",
	OpFPGAFlashProgram: "fpga flash program",
	OpFPGAFlashEnd:     "fpga flash end",
	OpAdjustBrightness: "adjust brightness",
	OpI2C:              "i2c",
	OpHDMIState:        "hdmi state",
	OpDisplayState:     "display state",
	OpEDIDState:        "edid state",
	OpDebugAction:      "debug action",
	OpIRState:          "ir state",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(o))
}
