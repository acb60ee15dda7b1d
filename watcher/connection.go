package watcher

import (
	"context"

	"github.com/moffa90/go-devlink/device"
	"github.com/moffa90/go-devlink/dfu"
)

// DeviceFinder locates the device in operating mode. *device.Finder
// implements it.
type DeviceFinder interface {
	Find(ctx context.Context) (*device.Client, error)
}

// BootloaderFinder locates the DFU bootloader. *dfu.Locator implements it.
type BootloaderFinder interface {
	Find(ctx context.Context) (*dfu.Device, error)
}

// ConnectionWatcher reports the device in operating mode. A disconnected
// client is closed before onChange(nil) is delivered.
type ConnectionWatcher = Presence[*device.Client]

// NewConnectionWatcher watches for the device finder locates.
func NewConnectionWatcher(finder DeviceFinder, onChange func(*device.Client), opts ...Option) *ConnectionWatcher {
	return NewPresence("connection",
		finder.Find,
		func(_ context.Context, c *device.Client) bool { return c.IsConnected() },
		func(c *device.Client) { _ = c.Close() },
		onChange,
		opts...,
	)
}

// BootloaderWatcher reports the DFU bootloader.
type BootloaderWatcher = Presence[*dfu.Device]

// NewBootloaderWatcher watches for the bootloader locator finds. The
// bootloader is present for as long as the locator finds exactly one.
func NewBootloaderWatcher(locator BootloaderFinder, onChange func(*dfu.Device), opts ...Option) *BootloaderWatcher {
	return NewPresence("bootloader",
		locator.Find,
		func(ctx context.Context, _ *dfu.Device) bool {
			d, err := locator.Find(ctx)
			// A lookup cut short by Stop says nothing about the device.
			if ctx.Err() != nil {
				return true
			}
			return err == nil && d != nil
		},
		nil,
		onChange,
		opts...,
	)
}
