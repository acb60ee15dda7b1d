package protocol

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned when a device family has no command for an
// operation.
var ErrUnsupported = errors.New("operation not supported by device family")

// ErrCommandTooLarge is returned when an encoded command exceeds MaxTxSize.
var ErrCommandTooLarge = errors.New("command too large")

// MalformedResponseError indicates that a response buffer was shorter than
// every layout the command's schema accepts. The bytes cannot be safely
// interpreted.
type MalformedResponseError struct {
	// Command is the command that produced the response
	Command string

	// Got is the number of bytes received
	Got int

	// Want is the size of the current schema
	Want int
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: got %d bytes, expected %d", e.Command, e.Got, e.Want)
}

// StatusError represents a non-zero status byte returned by the device.
type StatusError struct {
	// Operation is the command that failed
	Operation string

	// Status is the status byte from the device
	Status byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: status 0x%02X", e.Operation, e.Status)
}

// IsStatusError returns true if the error is, or wraps, a StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
