package device

import (
	"errors"

	"periph.io/x/conn/v3/physic"

	"github.com/moffa90/go-devlink/protocol"
	"github.com/moffa90/go-devlink/transport"
)

// HIDEnumerator lists HID devices matching the family's USB identity.
func HIDEnumerator(opts ...transport.Option) Enumerator {
	return func(family *protocol.Family) ([]Candidate, error) {
		paths, err := transport.EnumerateHID(family.VendorID, family.ProductID)
		if err != nil {
			return nil, err
		}

		candidates := make([]Candidate, 0, len(paths))
		for _, p := range paths {
			path := p
			candidates = append(candidates, Candidate{
				Transport: "hid",
				ID:        path,
				Open: func() (transport.Backend, error) {
					return transport.OpenHIDPath(path, family.VendorID, family.ProductID, opts...)
				},
			})
		}
		return candidates, nil
	}
}

// FTDIEnumerator opens the FT232H bridge, if exactly one is connected, and
// offers it as a candidate. A zero freq selects the default bus clock.
func FTDIEnumerator(freq physic.Frequency, opts ...transport.Option) Enumerator {
	return func(family *protocol.Family) ([]Candidate, error) {
		backend, err := transport.OpenFTDI(family.I2CAddress, freq, opts...)
		if errors.Is(err, transport.ErrNoDevice) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []Candidate{preopened("ftdi", "ft232h", backend)}, nil
	}
}

// I2CDevEnumerator offers the Linux i2c-dev buses of the family's display.
//
// When bus is set only that node is tried. Otherwise the DRM connectors are
// searched by EDID; one display can show up on several buses, so each is
// tried and only the ones that answer are offered.
func I2CDevEnumerator(bus string, opts ...transport.Option) Enumerator {
	return func(family *protocol.Family) ([]Candidate, error) {
		buses := []string{bus}
		if bus == "" {
			if family.EDIDProductID == 0 {
				return nil, nil
			}
			var err error
			buses, err = transport.FindEDIDBuses(transport.DefaultDRMRoot, "/dev", transport.DefaultPNPID, family.EDIDProductID)
			if err != nil {
				return nil, err
			}
		}

		var candidates []Candidate
		for _, path := range buses {
			backend, err := transport.OpenI2CDev(path, family.I2CAddress, opts...)
			if err != nil {
				continue
			}
			if !backend.IsConnected() {
				_ = backend.Close()
				continue
			}
			candidates = append(candidates, preopened("i2c-dev", path, backend))
		}
		return candidates, nil
	}
}

func preopened(kind, id string, backend transport.Backend) Candidate {
	return Candidate{
		Transport: kind,
		ID:        id,
		Open:      func() (transport.Backend, error) { return backend, nil },
		Discard:   func() { _ = backend.Close() },
	}
}
