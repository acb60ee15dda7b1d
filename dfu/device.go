package dfu

import (
	"errors"
	"fmt"
)

// USB identity of the STM32 system bootloader.
const (
	VendorID  = 0x0483
	ProductID = 0xDF11
)

var (
	// ErrNotFound is returned when no bootloader is attached.
	ErrNotFound = errors.New("no dfu device found")

	// ErrAmbiguous is returned when more than one bootloader is attached.
	ErrAmbiguous = errors.New("more than one dfu device found")
)

// Device describes one attached bootloader.
type Device struct {
	VendorID  uint16
	ProductID uint16

	// Bus and Address locate the device on the host
	Bus     int
	Address int

	// Ports is the port chain from the root hub, used to select the device
	// when invoking external tools
	Ports []int
}

// ID returns the device identity in vid:pid form.
func (d *Device) ID() string {
	return fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID)
}

// PortPath returns the port chain in the "bus-port.port" form dfu-util
// accepts for --path, or "" when unknown.
func (d *Device) PortPath() string {
	if len(d.Ports) == 0 {
		return ""
	}
	s := fmt.Sprintf("%d-%d", d.Bus, d.Ports[0])
	for _, p := range d.Ports[1:] {
		s += fmt.Sprintf(".%d", p)
	}
	return s
}

func (d *Device) String() string {
	return fmt.Sprintf("%s bus %d address %d", d.ID(), d.Bus, d.Address)
}
