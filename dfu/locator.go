package dfu

import (
	"context"
	"fmt"

	"github.com/google/gousb"
	"github.com/loopholelabs/logging/types"
)

// ListFunc returns the attached devices matching vid and pid.
type ListFunc func(vid, pid uint16) ([]*Device, error)

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithIdentity overrides the bootloader vendor and product IDs.
func WithIdentity(vid, pid uint16) LocatorOption {
	return func(l *Locator) {
		l.vid, l.pid = vid, pid
	}
}

// WithList replaces USB enumeration.
func WithList(list ListFunc) LocatorOption {
	return func(l *Locator) {
		l.list = list
	}
}

// WithLogger sets the locator logger.
func WithLogger(log types.Logger) LocatorOption {
	return func(l *Locator) {
		l.log = log
	}
}

// Locator finds the bootloader by its USB identity.
type Locator struct {
	vid, pid uint16
	list     ListFunc
	log      types.Logger
}

// NewLocator returns a locator for the STM32 bootloader using gousb.
func NewLocator(opts ...LocatorOption) *Locator {
	l := &Locator{
		vid:  VendorID,
		pid:  ProductID,
		list: ListUSB,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Find returns the bootloader when exactly one is attached.
func (l *Locator) Find(ctx context.Context) (*Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devs, err := l.list(l.vid, l.pid)
	if err != nil {
		return nil, fmt.Errorf("list usb devices: %w", err)
	}

	switch len(devs) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return devs[0], nil
	default:
		if l.log != nil {
			l.log.Warn().
				Int("count", len(devs)).
				Msg("more than one dfu device attached")
		}
		return nil, ErrAmbiguous
	}
}

// ListUSB enumerates USB descriptors with libusb. No device is opened: the
// filter records matches and declines them.
func ListUSB(vid, pid uint16) ([]*Device, error) {
	ctx := gousb.NewContext()
	defer func() { _ = ctx.Close() }()

	var found []*Device
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if uint16(desc.Vendor) == vid && uint16(desc.Product) == pid {
			found = append(found, &Device{
				VendorID:  uint16(desc.Vendor),
				ProductID: uint16(desc.Product),
				Bus:       desc.Bus,
				Address:   desc.Address,
				Ports:     append([]int(nil), desc.Path...),
			})
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
