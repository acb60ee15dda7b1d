package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moffa90/go-devlink/metrics"
	"github.com/moffa90/go-devlink/protocol"
	"github.com/moffa90/go-devlink/transport"
)

// Client is a command channel to one device.
//
// At most one exchange is in flight: every command holds the client lock
// for its full round trip, so commands complete in issue order. The client
// keeps no state between calls.
type Client struct {
	mu      sync.Mutex
	backend transport.Backend
	family  *protocol.Family
	session string
	config  Config
}

// NewClient binds backend to family.
func NewClient(backend transport.Backend, family *protocol.Family, opts ...Option) *Client {
	if backend == nil {
		panic("backend cannot be nil")
	}
	if family == nil {
		panic("family cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		backend: backend,
		family:  family,
		session: uuid.NewString(),
		config:  cfg,
	}
}

// Family returns the device family.
func (c *Client) Family() *protocol.Family { return c.family }

// Transport returns the backend kind ("hid", "ftdi", "i2c-dev").
func (c *Client) Transport() string { return c.backend.Kind() }

// Session returns the id used to correlate this client's log entries.
func (c *Client) Session() string { return c.session }

// IsConnected checks the backend without disturbing an exchange in flight.
// It does not take the exchange lock; backends guard their own handle so a
// liveness check may race Close safely.
func (c *Client) IsConnected() bool {
	return c.backend.IsConnected()
}

// Close releases the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Close()
}

// Send performs one command exchange and decodes the response.
//
// A zero timeout selects the configured command timeout. Commands without a
// response return (nil, nil). A response longer than its schema is decoded
// from its prefix and logged as schema drift; a shorter one yields a
// *protocol.MalformedResponseError.
func (c *Client) Send(ctx context.Context, op protocol.Op, payload []byte, timeout time.Duration) (protocol.Response, error) {
	cmd, err := c.family.Commands.Lookup(op)
	if err != nil {
		return nil, err
	}

	frame, err := protocol.Encode(cmd, payload)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = c.config.CommandTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	buf, err := c.backend.Exchange(ctx, frame, cmd.ResponseSize(), timeout)
	if err != nil {
		c.config.Metrics.Exchange(c.family.Name, c.backend.Kind(), resultOf(err), time.Since(start))
		c.logExchangeError(cmd, timeout, err)
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}

	if !cmd.HasResponse() {
		c.config.Metrics.Exchange(c.family.Name, c.backend.Kind(), metrics.ResultOK, time.Since(start))
		return nil, nil
	}

	resp, truncated, err := protocol.Decode(cmd, buf)
	if err != nil {
		c.config.Metrics.Exchange(c.family.Name, c.backend.Kind(), metrics.ResultMalformed, time.Since(start))
		if c.config.Logger != nil {
			c.config.Logger.Error().
				Str("family", c.family.Name).
				Str("session", c.session).
				Str("command", cmd.Op.String()).
				Err(err).
				Msg("malformed response")
		}
		return nil, err
	}

	c.config.Metrics.Exchange(c.family.Name, c.backend.Kind(), metrics.ResultOK, time.Since(start))

	if truncated > 0 {
		c.config.Metrics.SchemaDrift(c.family.Name, cmd.Op.String())
		if c.config.Logger != nil {
			c.config.Logger.Warn().
				Str("family", c.family.Name).
				Str("session", c.session).
				Str("command", cmd.Op.String()).
				Int("got", len(buf)).
				Int("want", len(buf)-truncated).
				Msg("response longer than schema, extra bytes ignored")
		}
	}

	return resp, nil
}

// SendSimple performs a command whose response is a single status byte and
// returns that byte.
func (c *Client) SendSimple(ctx context.Context, op protocol.Op, payload []byte, timeout time.Duration) (byte, error) {
	resp, err := c.Send(ctx, op, payload, timeout)
	if err != nil {
		return 0, err
	}

	status, ok := resp.(*protocol.Status)
	if !ok {
		return 0, fmt.Errorf("%s does not return a status byte", op)
	}

	return status.Code, nil
}

func (c *Client) logExchangeError(cmd protocol.Command, timeout time.Duration, err error) {
	if c.config.Logger == nil {
		return
	}

	// Timeouts are routine reconnect noise.
	if errors.Is(err, transport.ErrTimeout) || errors.Is(err, context.Canceled) {
		c.config.Logger.Debug().
			Str("family", c.family.Name).
			Str("session", c.session).
			Str("command", cmd.Op.String()).
			Str("timeout", timeout.String()).
			Err(err).
			Msg("exchange did not complete")
		return
	}

	c.config.Logger.Error().
		Str("family", c.family.Name).
		Str("session", c.session).
		Str("transport", c.backend.Kind()).
		Str("command", cmd.Op.String()).
		Err(err).
		Msg("exchange failed")
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, transport.ErrTimeout):
		return metrics.ResultTimeout
	case errors.Is(err, transport.ErrNotConnected):
		return metrics.ResultNotConnected
	default:
		return metrics.ResultError
	}
}

// checkStatus turns a non-zero status byte into a *protocol.StatusError.
func checkStatus(op protocol.Op, status byte) error {
	if status != protocol.StatusOK {
		return &protocol.StatusError{Operation: op.String(), Status: status}
	}
	return nil
}
