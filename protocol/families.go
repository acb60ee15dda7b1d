package protocol

import (
	"fmt"
	"sort"
)

func newMicroVersion() Response { return new(MicroVersion) }
func newLogPart() Response      { return new(LogPart) }
func newSerialNumber() Response { return new(SerialNumber) }
func newStatus() Response       { return new(Status) }
func newI2CResult() Response    { return new(I2CResult) }
func newBrightness() Response   { return new(Brightness) }
func newHDMIState() Response    { return new(HDMIState) }
func newEDIDState() Response    { return new(EDIDState) }
func newDisplayState() Response { return new(DisplayState) }
func newIRState() Response      { return new(IRState) }
func newFPGAVersion() Response  { return new(FPGAVersion) }

// Display is the display controller: OLED panel, HDMI receiver and FPGA.
var Display = &Family{
	Name:          "display",
	Description:   "OLED 2k display controller",
	VendorID:      VendorID,
	ProductID:     ProductIDDisplay,
	I2CAddress:    DefaultI2CAddress,
	EDIDProductID: 569,
	Commands: NewTable(
		Command{Op: OpVersion, Opcode: 0x01, NewResponse: newMicroVersion},
		Command{Op: OpRebootFirmware, Opcode: 0x02},
		Command{Op: OpRebootBootloader, Opcode: 0x03},
		Command{Op: OpFPGAVersion, Opcode: 0x04, NewResponse: newFPGAVersion},
		Command{Op: OpFPGAFlashStart, Opcode: 0x05, NewResponse: newStatus},
		Command{Op: OpFPGAFlashProgram, Opcode: 0x06, NewResponse: newStatus},
		Command{Op: OpFPGAFlashEnd, Opcode: 0x07, NewResponse: newStatus},
		Command{Op: OpAdjustBrightness, Opcode: 0x08, NewResponse: newBrightness},
		Command{Op: OpI2C, Opcode: 0x0D, NewResponse: newI2CResult},
		Command{Op: OpHDMIState, Opcode: 0x0E, NewResponse: newHDMIState},
		Command{Op: OpDisplayState, Opcode: 0x11, NewResponse: newDisplayState},
		Command{Op: OpEDIDState, Opcode: 0x12, NewResponse: newEDIDState},
		Command{Op: OpSerialNumber, Opcode: 0x1A, NewResponse: newSerialNumber},
		Command{Op: OpReadLog, Opcode: 0x1D, NewResponse: newLogPart},
		Command{Op: OpDebugAction, Opcode: 0x1E, NewResponse: newStatus},
	),
}

// IR is the IR camera module.
var IR = &Family{
	Name:        "ir",
	Description: "Framework IR module",
	VendorID:    VendorID,
	ProductID:   ProductIDIR,
	I2CAddress:  DefaultI2CAddress,
	Commands: NewTable(
		Command{Op: OpVersion, Opcode: 0x01, NewResponse: newMicroVersion},
		Command{Op: OpRebootFirmware, Opcode: 0x02},
		Command{Op: OpRebootBootloader, Opcode: 0x03},
		Command{Op: OpReadLog, Opcode: 0x04, NewResponse: newLogPart},
		Command{Op: OpSerialNumber, Opcode: 0x05, NewResponse: newSerialNumber},
		Command{Op: OpIRState, Opcode: 0x06, NewResponse: newIRState},
	),
}

var families = map[string]*Family{
	Display.Name: Display,
	IR.Name:      IR,
}

// LookupFamily returns the family registered under name.
func LookupFamily(name string) (*Family, error) {
	f, ok := families[name]
	if !ok {
		return nil, fmt.Errorf("unknown device family %q", name)
	}
	return f, nil
}

// FamilyNames returns the registered family names in sorted order.
func FamilyNames() []string {
	names := make([]string, 0, len(families))
	for n := range families {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
