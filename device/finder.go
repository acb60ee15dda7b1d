package device

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/moffa90/go-devlink/protocol"
	"github.com/moffa90/go-devlink/transport"
)

// Candidate is one transport through which a device may be reachable.
type Candidate struct {
	// Transport names the backend kind
	Transport string

	// ID identifies the candidate within its transport (HID path, bus node)
	ID string

	// Open constructs the backend
	Open func() (transport.Backend, error)

	// Discard releases resources held by a candidate that is not opened
	// (optional)
	Discard func()
}

// Enumerator lists the candidates of a device family on one transport.
type Enumerator func(family *protocol.Family) ([]Candidate, error)

// FinderConfig holds the finder configuration.
type FinderConfig struct {
	// Enumerators are consulted in order on every Find
	Enumerators []Enumerator

	// Warmup is slept once, before the first candidate is opened
	Warmup time.Duration

	// Logger is used for discovery noise (optional)
	Logger types.Logger

	// ClientOptions are applied to every returned Client
	ClientOptions []Option
}

// DefaultWarmup returns the one-time delay before the first lookup: the
// Windows HID driver stack is slow to come up after enumeration.
func DefaultWarmup() time.Duration {
	if runtime.GOOS == "windows" {
		return time.Second
	}
	return 0
}

// FinderOption is a functional option for configuring a Finder.
type FinderOption func(*FinderConfig)

// WithEnumerators replaces the default HID enumerator.
func WithEnumerators(e ...Enumerator) FinderOption {
	return func(c *FinderConfig) {
		c.Enumerators = e
	}
}

// WithWarmup sets the one-time delay before the first lookup.
func WithWarmup(d time.Duration) FinderOption {
	return func(c *FinderConfig) {
		c.Warmup = d
	}
}

// WithFinderLogger sets the finder logger.
func WithFinderLogger(log types.Logger) FinderOption {
	return func(c *FinderConfig) {
		c.Logger = log
	}
}

// WithClientOptions sets options for the clients the finder returns.
func WithClientOptions(opts ...Option) FinderOption {
	return func(c *FinderConfig) {
		c.ClientOptions = opts
	}
}

// Finder locates a device family and returns a bound Client.
type Finder struct {
	family *protocol.Family
	config FinderConfig

	mu       sync.Mutex
	warmedUp bool
}

// NewFinder creates a finder for family. Without options it enumerates HID
// only.
func NewFinder(family *protocol.Family, opts ...FinderOption) *Finder {
	if family == nil {
		panic("family cannot be nil")
	}

	cfg := FinderConfig{
		Warmup: DefaultWarmup(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Enumerators == nil {
		cfg.Enumerators = []Enumerator{HIDEnumerator()}
	}

	return &Finder{family: family, config: cfg}
}

// Family returns the family the finder looks for.
func (f *Finder) Family() *protocol.Family { return f.family }

// Find returns a Client when exactly one live candidate exists. Zero
// candidates, or one that does not answer its liveness check, yield
// ErrNotFound; several yield ErrAmbiguous.
func (f *Finder) Find(ctx context.Context) (*Client, error) {
	var candidates []Candidate
	ambiguous := false

	for _, enumerate := range f.config.Enumerators {
		found, err := enumerate(f.family)
		if errors.Is(err, transport.ErrMultipleDevices) {
			ambiguous = true
			continue
		}
		if err != nil {
			f.logDebug("enumeration failed", err)
			continue
		}
		candidates = append(candidates, found...)
	}

	if ambiguous || len(candidates) > 1 {
		discardAll(candidates)
		if f.config.Logger != nil {
			f.config.Logger.Warn().
				Str("family", f.family.Name).
				Int("candidates", len(candidates)).
				Msg("more than one device found, connect only one")
		}
		return nil, fmt.Errorf("%s: %w", f.family.Name, ErrAmbiguous)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: %w", f.family.Name, ErrNotFound)
	}

	if err := f.warmup(ctx); err != nil {
		discardAll(candidates)
		return nil, err
	}

	cand := candidates[0]
	backend, err := cand.Open()
	if err != nil {
		f.logDebug("open failed", err)
		return nil, fmt.Errorf("%s: open %s %s: %w", f.family.Name, cand.Transport, cand.ID, err)
	}

	// A HID device that is disconnecting can still be enumerated, and a
	// bridge being present does not mean the device is behind it.
	if !backend.IsConnected() {
		_ = backend.Close()
		if f.config.Logger != nil {
			f.config.Logger.Debug().
				Str("family", f.family.Name).
				Str("transport", cand.Transport).
				Str("id", cand.ID).
				Msg("candidate enumerated but not connected")
		}
		return nil, fmt.Errorf("%s: %w", f.family.Name, ErrNotFound)
	}

	client := NewClient(backend, f.family, f.config.ClientOptions...)
	if f.config.Logger != nil {
		f.config.Logger.Info().
			Str("family", f.family.Name).
			Str("transport", cand.Transport).
			Str("id", cand.ID).
			Str("session", client.Session()).
			Msg("device found")
	}

	return client, nil
}

func (f *Finder) warmup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.warmedUp || f.config.Warmup <= 0 {
		f.warmedUp = true
		return nil
	}

	if f.config.Logger != nil {
		f.config.Logger.Debug().
			Str("family", f.family.Name).
			Str("delay", f.config.Warmup.String()).
			Msg("delaying first connection")
	}

	t := time.NewTimer(f.config.Warmup)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	f.warmedUp = true
	return nil
}

func (f *Finder) logDebug(msg string, err error) {
	if f.config.Logger == nil {
		return
	}
	f.config.Logger.Debug().
		Str("family", f.family.Name).
		Err(err).
		Msg(msg)
}

func discardAll(candidates []Candidate) {
	for _, c := range candidates {
		if c.Discard != nil {
			c.Discard()
		}
	}
}
