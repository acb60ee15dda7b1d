package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-devlink/protocol"
)

// HID report framing constants.
const (
	// ReportSize is the fixed size of every HID report.
	ReportSize = 64

	// ReportIDIn is the report ID of device-to-host reports.
	ReportIDIn = 1

	// ReportIDOut is the report ID of host-to-device reports.
	ReportIDOut = 2

	firstHeaderSize = 6
	contHeaderSize  = 4
)

// HIDDevice is an open HID handle. ReadWithTimeout returns (0, nil) when no
// report arrived in time.
type HIDDevice interface {
	Write(p []byte) (int, error)
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// ReportCount returns the number of reports needed to carry n payload bytes.
func ReportCount(n int) int {
	if n <= ReportSize-firstHeaderSize {
		return 1
	}
	rest := n - (ReportSize - firstHeaderSize)
	per := ReportSize - contHeaderSize
	return 1 + (rest+per-1)/per
}

// EncodeReports splits payload into 64-byte reports.
//
// The first report carries the total payload length; continuation reports
// only carry the report ID and version. The tail of the last report is
// zero padded. A lost continuation report is only detectable by the
// receiver's final byte count.
func EncodeReports(reportID uint16, payload []byte) ([][]byte, error) {
	if err := checkWrite(payload); err != nil {
		return nil, err
	}

	reports := make([][]byte, 0, ReportCount(len(payload)))
	sent := 0
	for first := true; first || sent < len(payload); first = false {
		report := make([]byte, ReportSize)
		binary.LittleEndian.PutUint16(report[0:2], reportID)
		binary.LittleEndian.PutUint16(report[2:4], protocol.APIVersion)

		header := contHeaderSize
		if first {
			binary.LittleEndian.PutUint16(report[4:6], uint16(len(payload)))
			header = firstHeaderSize
		}

		sent += copy(report[header:], payload[sent:])
		reports = append(reports, report)
	}

	return reports, nil
}

// ReportAssembler reassembles a payload from a sequence of reports.
type ReportAssembler struct {
	reportID uint16
	total    int
	started  bool
	payload  []byte
}

// NewReportAssembler creates an assembler accepting reports with reportID.
func NewReportAssembler(reportID uint16) *ReportAssembler {
	return &ReportAssembler{reportID: reportID}
}

// Add consumes one report and reports whether the payload is complete.
func (a *ReportAssembler) Add(report []byte) (bool, error) {
	if len(report) < ReportSize {
		return false, fmt.Errorf("short report: %d bytes, expected %d", len(report), ReportSize)
	}

	id := binary.LittleEndian.Uint16(report[0:2])
	if id != a.reportID {
		return false, fmt.Errorf("unexpected report id %d, expected %d", id, a.reportID)
	}
	version := binary.LittleEndian.Uint16(report[2:4])
	if version != protocol.APIVersion {
		return false, fmt.Errorf("unexpected api version %d, expected %d", version, protocol.APIVersion)
	}

	header := contHeaderSize
	if !a.started {
		a.started = true
		a.total = int(binary.LittleEndian.Uint16(report[4:6]))
		a.payload = make([]byte, 0, a.total)
		header = firstHeaderSize
	}

	n := a.total - len(a.payload)
	if avail := ReportSize - header; n > avail {
		n = avail
	}
	a.payload = append(a.payload, report[header:header+n]...)

	return a.Done(), nil
}

// Done reports whether the declared total has arrived.
func (a *ReportAssembler) Done() bool {
	return a.started && len(a.payload) == a.total
}

// Payload returns the bytes assembled so far.
func (a *ReportAssembler) Payload() []byte {
	return a.payload
}

// HIDBackend exchanges commands over USB HID reports.
type HIDBackend struct {
	// mu guards dev and path; it is held for the whole exchange
	mu   sync.Mutex
	dev  HIDDevice
	path string
	list func() ([]string, error)
	cfg  Config
}

// NewHIDBackend wraps an open HID device. list enumerates the paths of
// every device with the same identity; it backs IsConnected.
func NewHIDBackend(dev HIDDevice, path string, list func() ([]string, error), opts ...Option) *HIDBackend {
	if dev == nil {
		panic("device cannot be nil")
	}

	return &HIDBackend{
		dev:  dev,
		path: path,
		list: list,
		cfg:  newConfig(opts),
	}
}

// Kind returns "hid".
func (b *HIDBackend) Kind() string { return "hid" }

// Path returns the HID path the backend was opened on.
func (b *HIDBackend) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Exchange writes w as HID reports and reads back readSize payload bytes.
func (b *HIDBackend) Exchange(ctx context.Context, w []byte, readSize int, timeout time.Duration) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return nil, ErrNotConnected
	}

	reports, err := EncodeReports(ReportIDOut, w)
	if err != nil {
		return nil, err
	}

	traceWire(b.cfg.Logger, b.Kind(), "write", w)
	for _, report := range reports {
		if _, err := b.dev.Write(report); err != nil {
			return nil, &DeviceError{Op: "write", Err: err}
		}
	}

	if readSize == 0 {
		return nil, nil
	}

	payload, err := b.readPayload(ctx, effectiveTimeout(timeout))
	if err != nil {
		return nil, err
	}
	traceWire(b.cfg.Logger, b.Kind(), "read", payload)

	return payload, nil
}

// readPayload is called with mu held.
func (b *HIDBackend) readPayload(ctx context.Context, timeout time.Duration) ([]byte, error) {
	asm := NewReportAssembler(ReportIDIn)
	buf := make([]byte, ReportSize)
	tries := 0

	for !asm.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := b.dev.ReadWithTimeout(buf, timeout)
		if err != nil {
			return nil, &DeviceError{Op: "read", Err: err}
		}

		if n == 0 {
			tries++
			if tries > b.cfg.ReadRetries {
				return nil, fmt.Errorf("read %d of %d bytes: %w", len(asm.Payload()), asm.total, ErrTimeout)
			}
			continue
		}
		tries = 0

		if _, err := asm.Add(buf[:n]); err != nil {
			return nil, &DeviceError{Op: "read", Err: err}
		}
	}

	return asm.Payload(), nil
}

// IsConnected re-enumerates the device identity and checks that exactly one
// device is present at the path this backend was opened on. Enumeration
// runs outside the lock so a liveness check never waits for an exchange in flight.
func (b *HIDBackend) IsConnected() bool {
	b.mu.Lock()
	open, path := b.dev != nil, b.path
	b.mu.Unlock()

	if !open || b.list == nil {
		return false
	}

	paths, err := b.list()
	if err != nil || len(paths) != 1 {
		return false
	}

	return paths[0] == path
}

// Close releases the HID handle. Further exchanges return ErrNotConnected.
func (b *HIDBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return nil
	}
	err := b.dev.Close()
	b.dev = nil
	b.path = ""
	return err
}
