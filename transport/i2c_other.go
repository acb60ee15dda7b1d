//go:build !linux

package transport

import (
	"errors"
	"runtime"
)

// OpenI2CDev is only available on Linux.
func OpenI2CDev(path string, addr uint16, opts ...Option) (*I2CBackend, error) {
	return nil, errors.New("i2c-dev is not supported on " + runtime.GOOS)
}
