package transport

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// FTDI bridge identity and bus defaults.
const (
	FTDIVendorID  = 0x0403
	FTDIProductID = 0x6014

	// DefaultFTDIFrequency is the I2C clock used on DDC/EDID lines.
	DefaultFTDIFrequency = 30 * physic.KiloHertz
)

// ftdiBus adapts a periph FT232H I2C port to I2CBus.
type ftdiBus struct {
	bus i2c.BusCloser
}

func (f *ftdiBus) Tx(addr uint16, w, r []byte) error {
	return wrapFTDIError(f.bus.Tx(addr, w, r))
}

func (f *ftdiBus) Ping(addr uint16) error {
	return wrapFTDIError(f.bus.Tx(addr, nil, make([]byte, 1)))
}

func (f *ftdiBus) Close() error {
	return f.bus.Close()
}

// wrapFTDIError marks address NACKs with ErrNack. periph reports them as
// plain errors, so the message is the only signal.
func wrapFTDIError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "nack") {
		return fmt.Errorf("%w: %v", ErrNack, err)
	}
	return err
}

// OpenFTDI opens the single FT232H bridge and returns a backend for the
// device at addr. A zero freq selects DefaultFTDIFrequency.
//
// Finding the bridge does not mean the controller is attached to it; call
// IsConnected before use.
func OpenFTDI(addr uint16, freq physic.Frequency, opts ...Option) (*I2CBackend, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	var bridges []*ftdi.FT232H
	for _, d := range ftdi.All() {
		var info ftdi.Info
		d.Info(&info)
		if info.VenID != FTDIVendorID || info.DevID != FTDIProductID {
			continue
		}
		if h, ok := d.(*ftdi.FT232H); ok {
			bridges = append(bridges, h)
		}
	}

	switch len(bridges) {
	case 0:
		return nil, ErrNoDevice
	case 1:
	default:
		return nil, fmt.Errorf("%d FTDI bridges connected, only connect one at a time: %w", len(bridges), ErrMultipleDevices)
	}

	bus, err := bridges[0].I2C(gpio.PullNoChange)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}

	if freq == 0 {
		freq = DefaultFTDIFrequency
	}
	if err := bus.SetSpeed(freq); err != nil {
		_ = bus.Close()
		return nil, &DeviceError{Op: "open", Err: err}
	}

	return NewI2CBackend(&ftdiBus{bus: bus}, addr, "ftdi", opts...), nil
}
