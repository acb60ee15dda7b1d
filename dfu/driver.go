package dfu

import (
	"context"

	"github.com/moffa90/go-devlink/dfuse"
)

// Progress is one progress report of a transfer.
type Progress struct {
	// Verify is true while reading back, false while programming
	Verify bool

	// Finished is set on the final report of a phase
	Finished bool

	// Percent is the completion of the current phase, 0 to 100
	Percent float64
}

// ProgressFunc receives progress reports. It is called from the goroutine
// running the transfer.
type ProgressFunc func(Progress)

// Driver transfers a DfuSe image to an attached bootloader.
type Driver interface {
	// FlashAndVerify programs img when flash is set and reads it back when
	// verify is set, then leaves DFU mode. The result is true only when
	// verification ran and every byte matched. Requesting neither phase
	// returns false without touching the device.
	FlashAndVerify(ctx context.Context, img *dfuse.Image, flash, verify bool, progress ProgressFunc) (bool, error)
}
