// Package transporttest provides in-memory stand-ins for the transport
// layer: a scripted Backend, a HID device that speaks the report framing and
// an I2C bus that answers with configurable busy periods.
package transporttest

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/moffa90/go-devlink/protocol"
	"github.com/moffa90/go-devlink/transport"
)

// Handler answers one decoded command. A nil return means no response.
type Handler func(req []byte) []byte

// Exchange records one call to Backend.Exchange.
type Exchange struct {
	Write    []byte
	ReadSize int
	Timeout  time.Duration
}

// Backend is a scripted transport.Backend.
//
// Responses are consumed in order; when the queue is empty Handler is used,
// and when that is nil the exchange times out.
type Backend struct {
	mu        sync.Mutex
	responses []result
	exchanges []Exchange
	connected bool
	closed    bool

	// Handler answers exchanges once the scripted responses run out
	Handler func(w []byte, readSize int) ([]byte, error)

	// Delay is slept before every exchange
	Delay time.Duration
}

type result struct {
	data []byte
	err  error
}

// NewBackend returns a connected fake backend.
func NewBackend() *Backend {
	return &Backend{connected: true}
}

// Respond queues a successful response.
func (b *Backend) Respond(data []byte) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses = append(b.responses, result{data: data})
	return b
}

// Fail queues a failed exchange.
func (b *Backend) Fail(err error) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses = append(b.responses, result{err: err})
	return b
}

// SetConnected controls IsConnected.
func (b *Backend) SetConnected(c bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = c
}

// Exchanges returns the recorded calls.
func (b *Backend) Exchanges() []Exchange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Exchange(nil), b.exchanges...)
}

// Closed reports whether Close has been called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Backend) Exchange(ctx context.Context, w []byte, readSize int, timeout time.Duration) ([]byte, error) {
	if b.Delay > 0 {
		time.Sleep(b.Delay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, transport.ErrNotConnected
	}
	b.exchanges = append(b.exchanges, Exchange{
		Write:    append([]byte(nil), w...),
		ReadSize: readSize,
		Timeout:  timeout,
	})

	if len(b.responses) > 0 {
		r := b.responses[0]
		b.responses = b.responses[1:]
		return r.data, r.err
	}
	if b.Handler != nil {
		return b.Handler(w, readSize)
	}
	if readSize == 0 {
		return nil, nil
	}
	return nil, transport.ErrTimeout
}

func (b *Backend) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected && !b.closed
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) Kind() string { return "fake" }

// HIDDevice is an in-memory HID device. Host reports are reassembled and
// handed to Handler; its answer is queued as device reports.
type HIDDevice struct {
	mu      sync.Mutex
	asm     *transport.ReportAssembler
	pending [][]byte
	writes  int
	closed  bool

	// Handler answers each reassembled command
	Handler Handler

	// Drop, when set, discards the outgoing device report with that index
	Drop func(index int) bool

	// WriteErr is returned by every Write when set
	WriteErr error
}

// NewHIDDevice returns a device answering with h.
func NewHIDDevice(h Handler) *HIDDevice {
	return &HIDDevice{Handler: h}
}

func (d *HIDDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.WriteErr != nil {
		return 0, d.WriteErr
	}
	if d.closed {
		return 0, errors.New("device closed")
	}
	d.writes++

	if d.asm == nil {
		d.asm = transport.NewReportAssembler(transport.ReportIDOut)
	}
	done, err := d.asm.Add(p)
	if err != nil {
		return 0, err
	}
	if !done {
		return len(p), nil
	}

	req := d.asm.Payload()
	d.asm = nil

	if d.Handler == nil {
		return len(p), nil
	}
	resp := d.Handler(req)
	if resp == nil {
		return len(p), nil
	}

	reports, err := transport.EncodeReports(transport.ReportIDIn, resp)
	if err != nil {
		return 0, err
	}
	for i, r := range reports {
		if d.Drop != nil && d.Drop(i) {
			continue
		}
		d.pending = append(d.pending, r)
	}

	return len(p), nil
}

func (d *HIDDevice) ReadWithTimeout(p []byte, _ time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return 0, nil
	}
	r := d.pending[0]
	d.pending = d.pending[1:]
	return copy(p, r), nil
}

func (d *HIDDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Writes returns the number of reports written by the host.
func (d *HIDDevice) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

// I2CBus is an in-memory I2C bus with one device.
type I2CBus struct {
	mu       sync.Mutex
	pending  []byte
	busy     int
	requests [][]byte
	reads    int
	pings    int
	closed   bool

	// Addr is the address the device answers on
	Addr uint16

	// Handler answers each command
	Handler Handler

	// BusyReads is the number of reads NACKed after each command
	BusyReads int

	// SizeOverride, when non-zero, replaces the length in the response header
	SizeOverride uint16

	// VersionOverride, when non-zero, replaces the version in the response header
	VersionOverride uint16

	// WriteErr and ReadErr are returned by the matching transaction when set
	WriteErr error
	ReadErr  error

	// Absent makes the device NACK everything
	Absent bool
}

// NewI2CBus returns a bus with a device at addr answering with h.
func NewI2CBus(addr uint16, h Handler) *I2CBus {
	return &I2CBus{Addr: addr, Handler: h}
}

func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New("bus closed")
	}
	if addr != b.Addr || b.Absent {
		return transport.ErrNack
	}

	if len(w) > 0 {
		if b.WriteErr != nil {
			return b.WriteErr
		}
		req := append([]byte(nil), w...)
		b.requests = append(b.requests, req)
		b.busy = b.BusyReads
		b.pending = nil
		if b.Handler != nil && len(req) >= protocol.HeaderSize {
			b.pending = b.Handler(req[protocol.HeaderSize:])
		}
	}

	if len(r) > 0 {
		b.reads++
		if b.ReadErr != nil {
			return b.ReadErr
		}
		if b.busy > 0 {
			b.busy--
			return transport.ErrNack
		}

		version := uint16(protocol.APIVersion)
		if b.VersionOverride != 0 {
			version = b.VersionOverride
		}
		size := uint16(len(b.pending))
		if b.SizeOverride != 0 {
			size = b.SizeOverride
		}
		for i := range r {
			r[i] = 0
		}
		binary.LittleEndian.PutUint16(r[0:2], version)
		binary.LittleEndian.PutUint16(r[2:4], size)
		copy(r[protocol.HeaderSize:], b.pending)
	}

	return nil
}

func (b *I2CBus) Ping(addr uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pings++
	if b.closed {
		return errors.New("bus closed")
	}
	if addr != b.Addr || b.Absent {
		return transport.ErrNack
	}
	return nil
}

func (b *I2CBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Requests returns the framed requests written so far.
func (b *I2CBus) Requests() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.requests...)
}

// Reads returns the number of read transactions.
func (b *I2CBus) Reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

// Pings returns the number of address-only transactions.
func (b *I2CBus) Pings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pings
}

// SetAbsent toggles whether the device answers.
func (b *I2CBus) SetAbsent(absent bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Absent = absent
}
