package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	hid "github.com/sstallion/go-hid"
)

var hidInit struct {
	once sync.Once
	err  error
}

func initHID() error {
	hidInit.once.Do(func() {
		hidInit.err = hid.Init()
	})
	return hidInit.err
}

// EnumerateHID returns the paths of the HID devices matching vid:pid.
// Entries sharing a path are collapsed; they are interfaces of the same
// physical device.
func EnumerateHID(vid, pid uint16) ([]string, error) {
	if err := initHID(); err != nil {
		return nil, fmt.Errorf("hid init: %w", err)
	}

	seen := make(map[string]struct{})
	var paths []string
	err := hid.Enumerate(vid, pid, func(info *hid.DeviceInfo) error {
		if _, dup := seen[info.Path]; dup {
			return nil
		}
		seen[info.Path] = struct{}{}
		paths = append(paths, info.Path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hid enumerate %04X:%04X: %w", vid, pid, err)
	}

	return paths, nil
}

// hidHandle adapts *hid.Device to HIDDevice.
type hidHandle struct {
	*hid.Device
}

func (h hidHandle) ReadWithTimeout(p []byte, timeout time.Duration) (int, error) {
	n, err := h.Device.ReadWithTimeout(p, timeout)
	if errors.Is(err, hid.ErrTimeout) {
		return 0, nil
	}
	return n, err
}

// OpenHID opens the single HID device matching vid:pid. It returns
// ErrNoDevice or ErrMultipleDevices when the match is not unique.
func OpenHID(vid, pid uint16, opts ...Option) (*HIDBackend, error) {
	paths, err := EnumerateHID(vid, pid)
	if err != nil {
		return nil, err
	}

	switch len(paths) {
	case 0:
		return nil, ErrNoDevice
	case 1:
	default:
		return nil, fmt.Errorf("%04X:%04X: %d paths: %w", vid, pid, len(paths), ErrMultipleDevices)
	}

	return OpenHIDPath(paths[0], vid, pid, opts...)
}

// OpenHIDPath opens the HID device at path. vid and pid identify the device
// for IsConnected.
func OpenHIDPath(path string, vid, pid uint16, opts ...Option) (*HIDBackend, error) {
	if err := initHID(); err != nil {
		return nil, fmt.Errorf("hid init: %w", err)
	}

	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}

	list := func() ([]string, error) { return EnumerateHID(vid, pid) }
	return NewHIDBackend(hidHandle{dev}, path, list, opts...), nil
}
