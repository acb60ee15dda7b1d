package firmware

import (
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/moffa90/go-devlink/dfu"
	"github.com/moffa90/go-devlink/metrics"
	"github.com/moffa90/go-devlink/protocol"
)

// Default timings of the STM32 path.
const (
	DefaultDisconnectDelay   = 500 * time.Millisecond
	DefaultBootloaderTimeout = 2 * time.Second
	DefaultBootloaderPoll    = 100 * time.Millisecond
)

// DriverFactory returns the driver that talks to a located bootloader.
type DriverFactory func(dev *dfu.Device) dfu.Driver

// Config holds the updater configuration.
type Config struct {
	// ProgressCallback is called during updates to report progress (optional)
	ProgressCallback ProgressCallback

	// Poster delivers ProgressCallback off the updating goroutine (optional)
	Poster Poster

	// Logger is used for logging operations (optional)
	Logger types.Logger

	// Metrics receives progress and results (optional)
	Metrics metrics.Metrics

	// Suspenders are paused for the duration of every update
	Suspenders []Suspender

	// Driver builds the DFU driver; the default runs dfu-util
	Driver DriverFactory

	// DisconnectDelay is slept after the reboot-to-bootloader command
	DisconnectDelay time.Duration

	// BootloaderTimeout bounds the wait for the bootloader to enumerate
	BootloaderTimeout time.Duration

	// BootloaderPoll is the interval between bootloader lookups
	BootloaderPoll time.Duration

	// ChunkSize is the FPGA bitstream size per program command
	ChunkSize int
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Metrics:           metrics.Noop{},
		DisconnectDelay:   DefaultDisconnectDelay,
		BootloaderTimeout: DefaultBootloaderTimeout,
		BootloaderPoll:    DefaultBootloaderPoll,
		ChunkSize:         protocol.MaxFPGAChunk,
	}
}

// Option is a functional option for configuring the Updater.
type Option func(*Config)

// WithProgressCallback sets a callback function to track update progress.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithPoster routes progress reports through p so a slow consumer never
// holds up the flash.
//
// Example:
//
//	d := watcher.NewDispatcher(log)
//	u := firmware.New(locator, firmware.WithPoster(d), firmware.WithProgressCallback(show))
func WithPoster(p Poster) Option {
	return func(c *Config) {
		c.Poster = p
	}
}

// WithLogger sets a logger for the updater operations.
//
// Example:
//
//	u := firmware.New(locator, firmware.WithLogger(log))
func WithLogger(logger types.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics.OrNoop(m)
	}
}

// WithSuspenders registers the tasks paused during updates.
//
// Example:
//
//	u := firmware.New(locator, firmware.WithSuspenders(connWatcher, logWatcher))
func WithSuspenders(s ...Suspender) Option {
	return func(c *Config) {
		c.Suspenders = append(c.Suspenders, s...)
	}
}

// WithDriver replaces the dfu-util driver.
func WithDriver(f DriverFactory) Option {
	return func(c *Config) {
		c.Driver = f
	}
}

// WithBootloaderWait sets the delay after the reboot command and the bound
// on the wait for the bootloader.
func WithBootloaderWait(disconnect, timeout, poll time.Duration) Option {
	return func(c *Config) {
		if disconnect >= 0 {
			c.DisconnectDelay = disconnect
		}
		if timeout > 0 {
			c.BootloaderTimeout = timeout
		}
		if poll > 0 {
			c.BootloaderPoll = poll
		}
	}
}

// WithChunkSize sets the FPGA bitstream size per program command.
// Values outside 1..protocol.MaxFPGAChunk are ignored.
//
// Example:
//
//	u := firmware.New(locator, firmware.WithChunkSize(256))
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 && size <= protocol.MaxFPGAChunk {
			c.ChunkSize = size
		}
	}
}
