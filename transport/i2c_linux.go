//go:build linux

package transport

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// i2c-dev ioctl interface, see linux/i2c-dev.h and linux/i2c.h.
const (
	i2cRDWR  = 0x0707
	i2cMRead = 0x0001
	i2cMStop = 0x8000
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	_     uint16
	buf   uintptr
}

type i2cRDWRData struct {
	msgs  uintptr
	nmsgs uint32
}

// devBus is a /dev/i2c-N character device.
type devBus struct {
	path string
	fd   int
}

// openDevBus opens a Linux i2c-dev node.
func openDevBus(path string) (*devBus, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: fmt.Errorf("%s: %w", path, err)}
	}
	return &devBus{path: path, fd: fd}, nil
}

func (d *devBus) transfer(msgs []i2cMsg) error {
	data := i2cRDWRData{
		msgs:  uintptr(unsafe.Pointer(&msgs[0])),
		nmsgs: uint32(len(msgs)),
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), i2cRDWR, uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(msgs)
	if errno != 0 {
		return wrapDevError(errno)
	}
	return nil
}

func msgFor(addr uint16, flags uint16, b []byte) i2cMsg {
	m := i2cMsg{addr: addr, flags: flags, len: uint16(len(b))}
	if len(b) > 0 {
		m.buf = uintptr(unsafe.Pointer(&b[0]))
	}
	return m
}

func (d *devBus) Tx(addr uint16, w, r []byte) error {
	if len(w) > 0 {
		if err := d.transfer([]i2cMsg{msgFor(addr, 0, w)}); err != nil {
			return err
		}
		runtime.KeepAlive(w)
	}
	if len(r) > 0 {
		if err := d.transfer([]i2cMsg{msgFor(addr, i2cMRead|i2cMStop, r)}); err != nil {
			return err
		}
		runtime.KeepAlive(r)
	}
	return nil
}

func (d *devBus) Ping(addr uint16) error {
	return d.transfer([]i2cMsg{msgFor(addr, 0, nil)})
}

// Check verifies that the device node still exists.
func (d *devBus) Check() error {
	_, err := os.Stat(d.path)
	return err
}

func (d *devBus) Close() error {
	return unix.Close(d.fd)
}

// wrapDevError marks errnos the kernel uses for an unacknowledged address
// or a busy target with ErrNack.
func wrapDevError(errno unix.Errno) error {
	switch {
	case errors.Is(errno, unix.ENODEV), errors.Is(errno, unix.EBADF):
		return errno
	default:
		return fmt.Errorf("%w: %v", ErrNack, errno)
	}
}

// OpenI2CDev opens the Linux i2c-dev node at path and returns a backend for
// the device at addr.
func OpenI2CDev(path string, addr uint16, opts ...Option) (*I2CBackend, error) {
	bus, err := openDevBus(path)
	if err != nil {
		return nil, err
	}
	return NewI2CBackend(bus, addr, "i2c-dev", opts...), nil
}
