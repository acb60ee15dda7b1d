package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-devlink/protocol"
)

// ErrNack is wrapped by I2CBus implementations when the addressed device did
// not acknowledge. During a response poll it means "still processing".
var ErrNack = errors.New("i2c nack")

// I2CBus is one I2C master. Tx performs a single transaction: write w when
// non-empty, then read len(r) bytes when r is non-empty.
type I2CBus interface {
	Tx(addr uint16, w, r []byte) error
	Ping(addr uint16) error
	Close() error
}

// BusChecker is implemented by buses whose adapter can be checked without
// any I2C traffic, such as a USB bridge that may have been unplugged.
type BusChecker interface {
	Check() error
}

// I2CBackend exchanges commands over an I2C bus.
//
// The request is written as one transaction. The response is then polled:
// a NACK means the device is still working on the command and only the read
// is retried, never the write.
type I2CBackend struct {
	mu   sync.Mutex
	bus  I2CBus
	addr uint16
	kind string
	cfg  Config

	// seen caches a successful ping so that background connection checks
	// do not generate bus traffic. Any bus failure clears it.
	seen atomic.Bool
}

// NewI2CBackend wraps bus for the device at addr. kind names the adapter in
// logs and metrics ("ftdi", "i2c-dev").
func NewI2CBackend(bus I2CBus, addr uint16, kind string, opts ...Option) *I2CBackend {
	if bus == nil {
		panic("bus cannot be nil")
	}

	return &I2CBackend{
		bus:  bus,
		addr: addr,
		kind: kind,
		cfg:  newConfig(opts),
	}
}

// Kind returns the adapter name.
func (b *I2CBackend) Kind() string { return b.kind }

// Exchange writes w framed with the I2C header and polls for readSize
// payload bytes.
func (b *I2CBackend) Exchange(ctx context.Context, w []byte, readSize int, timeout time.Duration) ([]byte, error) {
	if err := checkWrite(w); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bus == nil {
		return nil, ErrNotConnected
	}

	req := make([]byte, protocol.HeaderSize, protocol.HeaderSize+len(w))
	binary.LittleEndian.PutUint16(req[0:2], protocol.APIVersion)
	binary.LittleEndian.PutUint16(req[2:4], uint16(len(w)))
	req = append(req, w...)

	traceWire(b.cfg.Logger, b.kind, "write", w)
	if err := b.bus.Tx(b.addr, req, nil); err != nil {
		b.seen.Store(false)
		b.logError("write", err)
		return nil, &DeviceError{Op: "write", Err: err}
	}

	if readSize == 0 {
		return nil, nil
	}

	resp, err := b.poll(ctx, readSize, effectiveTimeout(timeout))
	if err != nil {
		return nil, err
	}
	traceWire(b.cfg.Logger, b.kind, "read", resp)

	return resp, nil
}

func (b *I2CBackend) poll(ctx context.Context, readSize int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, protocol.HeaderSize+readSize)
	start := time.Now()
	first := true

	for {
		err := b.bus.Tx(b.addr, nil, buf)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrNack) {
			b.seen.Store(false)
			b.logError("read", err)
			return nil, &DeviceError{Op: "read", Err: err}
		}

		if !first {
			if err := sleepCtx(ctx, b.cfg.PollDelay); err != nil {
				return nil, err
			}
		}
		first = false

		if time.Since(start) > timeout {
			b.seen.Store(false)
			return nil, fmt.Errorf("waiting for busy flag to clear after %s: %w", timeout, ErrTimeout)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	version := binary.LittleEndian.Uint16(buf[0:2])
	if version != protocol.APIVersion {
		return nil, &DeviceError{Op: "read", Err: fmt.Errorf("unexpected api version %d, expected %d", version, protocol.APIVersion)}
	}

	size := int(binary.LittleEndian.Uint16(buf[2:4]))
	if size != readSize {
		return nil, &DeviceError{Op: "read", Err: fmt.Errorf("response size %d, expected %d", size, readSize)}
	}

	return buf[protocol.HeaderSize:], nil
}

// IsConnected reports whether the device has answered on the bus. Once it
// has, the cached result is returned without further traffic until a bus
// failure invalidates it.
func (b *I2CBackend) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bus == nil {
		return false
	}

	if c, ok := b.bus.(BusChecker); ok {
		if err := c.Check(); err != nil {
			b.seen.Store(false)
			return false
		}
	}

	if b.seen.Load() {
		return true
	}

	if err := b.bus.Ping(b.addr); err != nil {
		return false
	}
	b.seen.Store(true)
	return true
}

// Close releases the bus.
func (b *I2CBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bus == nil {
		return nil
	}
	err := b.bus.Close()
	b.bus = nil
	b.seen.Store(false)
	return err
}

func (b *I2CBackend) logError(op string, err error) {
	if b.cfg.Logger == nil {
		return
	}
	b.cfg.Logger.Error().
		Str("transport", b.kind).
		Str("op", op).
		Err(err).
		Msg("i2c transaction failed")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
