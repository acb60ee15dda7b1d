package device

import (
	"errors"

	"github.com/moffa90/go-devlink/transport"
)

var (
	// ErrNotFound is returned by Finder.Find when no live candidate exists.
	ErrNotFound = errors.New("device not found")

	// ErrAmbiguous is returned by Finder.Find when more than one candidate
	// exists. The finder never guesses.
	ErrAmbiguous = errors.New("more than one device candidate")
)

// IsTimeout reports whether err is a transport timeout. Timeouts are
// retryable by the caller.
func IsTimeout(err error) bool {
	return errors.Is(err, transport.ErrTimeout)
}

// IsDisconnected reports whether err means the session is unusable and the
// device must be rediscovered.
func IsDisconnected(err error) bool {
	return errors.Is(err, transport.ErrNotConnected)
}
