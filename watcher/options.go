package watcher

import (
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/moffa90/go-devlink/metrics"
)

// Default polling intervals.
const (
	DefaultInterval       = 500 * time.Millisecond
	DefaultPortInterval   = 100 * time.Millisecond
	DefaultSerialBaudRate = 115200
)

// Config holds the configuration shared by all watchers.
type Config struct {
	// Interval is the sleep between polls
	Interval time.Duration

	// Logger is used for state changes and poll errors (optional)
	Logger types.Logger

	// Metrics receives state transitions (optional)
	Metrics metrics.Metrics

	// Dispatcher delivers callbacks; nil calls them on the watcher goroutine
	Dispatcher *Dispatcher
}

func defaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Metrics:  metrics.Noop{},
	}
}

// Option is a functional option for configuring a watcher.
type Option func(*Config)

// WithInterval sets the sleep between polls.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Interval = d
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(log types.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics.OrNoop(m)
	}
}

// WithDispatcher routes callbacks through d.
func WithDispatcher(d *Dispatcher) Option {
	return func(c *Config) {
		c.Dispatcher = d
	}
}

func newConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
