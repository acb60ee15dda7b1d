package device

import (
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/moffa90/go-devlink/metrics"
)

// Default timeouts.
const (
	DefaultCommandTimeout = time.Second
	DefaultLogTimeout     = 100 * time.Millisecond
)

// Config holds the client configuration.
type Config struct {
	// Logger is used for exchange errors and schema drift (optional)
	Logger types.Logger

	// Metrics receives exchange results (optional)
	Metrics metrics.Metrics

	// CommandTimeout bounds every exchange that does not pass its own
	CommandTimeout time.Duration

	// LogTimeout bounds read-log-chunk exchanges
	LogTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		Metrics:        metrics.Noop{},
		CommandTimeout: DefaultCommandTimeout,
		LogTimeout:     DefaultLogTimeout,
	}
}

// Option is a functional option for configuring a Client.
type Option func(*Config)

// WithLogger sets the client logger.
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

// WithCommandTimeout sets the default exchange timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CommandTimeout = d
		}
	}
}

// WithLogTimeout sets the timeout of read-log-chunk exchanges.
func WithLogTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.LogTimeout = d
		}
	}
}
