package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/moffa90/go-devlink/protocol"
)

// DefaultTimeout is the exchange timeout used when the caller passes zero.
const DefaultTimeout = time.Second

var (
	// ErrTimeout is returned when the device did not answer within the
	// exchange timeout. The caller may retry.
	ErrTimeout = errors.New("transport timeout")

	// ErrNotConnected is returned when the backend has been closed or the
	// device is gone. The session is unusable and the device must be
	// rediscovered.
	ErrNotConnected = errors.New("device not connected")

	// ErrPayloadTooLarge is returned when a write buffer exceeds
	// protocol.MaxTxSize.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrNoDevice is returned by discovery helpers when no candidate exists.
	ErrNoDevice = errors.New("no device found")

	// ErrMultipleDevices is returned by discovery helpers when more than one
	// candidate exists. Discovery never guesses.
	ErrMultipleDevices = errors.New("more than one device found")
)

// DeviceError wraps a failure reported by the underlying bus or driver.
type DeviceError struct {
	// Op is the operation that failed ("open", "write", "read")
	Op string

	// Err is the driver error
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Backend is a synchronous byte-exchange primitive with one device.
//
// Exchange writes w and, when readSize is non-zero, reads back exactly
// readSize payload bytes or fails with ErrTimeout, ErrNotConnected or a
// *DeviceError. A zero readSize returns (nil, nil) after the write.
//
// IsConnected is a local check. It never disturbs a command in progress.
//
// Implementations are not safe for concurrent Exchange calls; device.Client
// serialises access.
type Backend interface {
	Exchange(ctx context.Context, w []byte, readSize int, timeout time.Duration) ([]byte, error)
	IsConnected() bool
	Close() error
	Kind() string
}

// Config holds options shared by every backend.
type Config struct {
	// Logger receives wire traces and bus errors (optional)
	Logger types.Logger

	// ReadRetries is the number of consecutive empty HID reads tolerated
	// before ErrTimeout.
	ReadRetries int

	// PollDelay is the pause between I2C read attempts while the device is
	// busy.
	PollDelay time.Duration
}

func defaultConfig() Config {
	return Config{
		ReadRetries: 3,
		PollDelay:   10 * time.Millisecond,
	}
}

// Option configures a backend.
type Option func(*Config)

// WithLogger sets the logger used for wire tracing and bus errors.
func WithLogger(log types.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithReadRetries sets how many consecutive empty HID reads are tolerated.
func WithReadRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.ReadRetries = n
		}
	}
}

// WithPollDelay sets the pause between I2C read attempts.
func WithPollDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.PollDelay = d
		}
	}
}

func newConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func checkWrite(w []byte) error {
	if len(w) > protocol.MaxTxSize {
		return fmt.Errorf("%d bytes exceeds maximum %d: %w", len(w), protocol.MaxTxSize, ErrPayloadTooLarge)
	}
	return nil
}

func effectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}

func traceWire(log types.Logger, kind, dir string, b []byte) {
	if log == nil {
		return
	}
	log.Trace().
		Str("transport", kind).
		Str("data", hex.EncodeToString(b)).
		Msg(dir)
}
