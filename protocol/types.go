package protocol

import (
	"fmt"
	"sort"
)

// Response is a fixed-size little-endian response layout.
//
// Size reports the exact number of bytes the layout occupies on the wire.
// UnmarshalBinary is only ever handed a buffer of exactly Size() bytes, or of
// one of the sizes reported by LegacyLayout when the response implements it.
type Response interface {
	Size() int
	UnmarshalBinary(data []byte) error
}

// LegacyLayout is implemented by responses whose earlier firmware revisions
// sent a shorter layout. Sizes are tried in order when a buffer is too short
// for the current layout.
type LegacyLayout interface {
	LegacySizes() []int
}

// Command describes one entry of a device family's command table.
type Command struct {
	// Op is the family-independent operation.
	Op Op

	// Opcode is the first byte of the encoded command.
	Opcode byte

	// NewResponse allocates the response schema. Nil when the device never
	// answers the command (reboots).
	NewResponse func() Response
}

// ResponseSize is the number of payload bytes to read back: zero when the
// command has no response, otherwise the size of its schema.
func (c Command) ResponseSize() int {
	if c.NewResponse == nil {
		return 0
	}
	return c.NewResponse().Size()
}

// HasResponse reports whether the device answers the command.
func (c Command) HasResponse() bool {
	return c.NewResponse != nil
}

func (c Command) String() string {
	return fmt.Sprintf("%s (0x%02X)", c.Op, c.Opcode)
}

// Table maps operations to the commands of one device family.
type Table map[Op]Command

// NewTable builds a table from a list of commands. A duplicate Op panics;
// tables are package-level data and a duplicate is a programming error.
func NewTable(cmds ...Command) Table {
	t := make(Table, len(cmds))
	for _, c := range cmds {
		if _, dup := t[c.Op]; dup {
			panic(fmt.Sprintf("protocol: duplicate command for %s", c.Op))
		}
		t[c.Op] = c
	}
	return t
}

// Lookup returns the command for op, or an error wrapping ErrUnsupported.
func (t Table) Lookup(op Op) (Command, error) {
	c, ok := t[op]
	if !ok {
		return Command{}, fmt.Errorf("%s: %w", op, ErrUnsupported)
	}
	return c, nil
}

// Ops returns the operations in the table in ascending order.
func (t Table) Ops() []Op {
	ops := make([]Op, 0, len(t))
	for op := range t {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Family describes one kind of controller: its USB identity and its
// command table.
type Family struct {
	// Name is the short identifier used in configuration and logs.
	Name string

	// Description is a human readable product name.
	Description string

	// VendorID and ProductID identify the device in operating mode.
	VendorID  uint16
	ProductID uint16

	// I2CAddress is the 7-bit address used by the I2C transports.
	I2CAddress uint16

	// EDIDProductID is the product code advertised in the display EDID,
	// used to locate the native I2C bus. Zero when the family has no EDID.
	EDIDProductID uint16

	// Commands is the family's command table.
	Commands Table
}

// Supports reports whether the family implements op.
func (f *Family) Supports(op Op) bool {
	_, ok := f.Commands[op]
	return ok
}

func (f *Family) String() string {
	return fmt.Sprintf("%s (%04X:%04X)", f.Name, f.VendorID, f.ProductID)
}
