package firmware

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevice is returned when neither the device nor its bootloader is
	// attached.
	ErrNoDevice = errors.New("no device connected")

	// ErrBootloaderNotFound is returned when the bootloader did not
	// enumerate in time after the reboot.
	ErrBootloaderNotFound = errors.New("bootloader not found")
)

// VerifyError indicates that the image read back from the microcontroller
// differs from the file. The firmware is likely corrupt.
type VerifyError struct {
	Path string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verification failed for %s: firmware is likely corrupt", e.Path)
}

// SequenceAbortError indicates that an FPGA flash step failed. The remaining
// steps were not run and the FPGA may be partially programmed.
type SequenceAbortError struct {
	// Step is "start", "program" or "end"
	Step string

	// Offset is the bitstream offset of a failed program step
	Offset uint32

	// Status is the device status, 0 when the step failed in transport
	Status byte

	Err error
}

func (e *SequenceAbortError) Error() string {
	if e.Step == "program" {
		return fmt.Sprintf("fpga flash %s at offset %d aborted: %v", e.Step, e.Offset, e.Err)
	}
	return fmt.Sprintf("fpga flash %s aborted: %v", e.Step, e.Err)
}

func (e *SequenceAbortError) Unwrap() error { return e.Err }
