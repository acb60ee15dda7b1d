package watcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialPort is the subset of serial.Port the serial log watcher uses.
type SerialPort interface {
	io.ReadCloser
	SetReadTimeout(t time.Duration) error
}

// PortLister lists serial ports with their USB details.
type PortLister func() ([]*enumerator.PortDetails, error)

// PortOpener opens a serial port.
type PortOpener func(name string, mode *serial.Mode) (SerialPort, error)

// OpenSerial opens a port with go.bug.st/serial.
func OpenSerial(name string, mode *serial.Mode) (SerialPort, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SerialOption configures a SerialLogWatcher.
type SerialOption func(*SerialLogWatcher)

// WithPortLister replaces serial port enumeration.
func WithPortLister(list PortLister) SerialOption {
	return func(w *SerialLogWatcher) {
		w.list = list
	}
}

// WithPortOpener replaces serial port opening.
func WithPortOpener(open PortOpener) SerialOption {
	return func(w *SerialLogWatcher) {
		w.open = open
	}
}

// WithPortInterval sets the sleep between port scans while no port is
// present.
func WithPortInterval(d time.Duration) SerialOption {
	return func(w *SerialLogWatcher) {
		if d > 0 {
			w.portInterval = d
		}
	}
}

// WithSettleDelay sets the extra delay between finding a port and opening
// it.
func WithSettleDelay(d time.Duration) SerialOption {
	return func(w *SerialLogWatcher) {
		w.settle = d
	}
}

// WithWatcherOptions applies the common watcher options.
func WithWatcherOptions(opts ...Option) SerialOption {
	return func(w *SerialLogWatcher) {
		w.config = newConfig(opts)
	}
}

// SerialLogWatcher delivers log lines the device prints on its CDC serial
// port. The port is located by USB vendor and product ID and reopened after
// any error.
type SerialLogWatcher struct {
	loop

	vid, pid     uint16
	list         PortLister
	open         PortOpener
	portInterval time.Duration
	settle       time.Duration
	onLine       func(string)
}

// NewSerialLogWatcher watches the serial port of the USB device vid:pid.
func NewSerialLogWatcher(vid, pid uint16, onLine func(string), opts ...SerialOption) *SerialLogWatcher {
	if onLine == nil {
		onLine = func(string) {}
	}

	w := &SerialLogWatcher{
		loop:         loop{name: "serial-log", config: defaultConfig()},
		vid:          vid,
		pid:          pid,
		list:         enumerator.GetDetailedPortsList,
		open:         OpenSerial,
		portInterval: DefaultPortInterval,
		onLine:       onLine,
	}
	if runtime.GOOS == "windows" {
		w.settle = time.Second
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the watcher goroutine.
func (w *SerialLogWatcher) Start(ctx context.Context) error {
	return w.start(ctx, w.run)
}

func (w *SerialLogWatcher) run(ctx context.Context) {
	for ctx.Err() == nil {
		name, err := w.findPort()
		if err != nil {
			w.logDebug("list serial ports", err)
		}
		if name == "" || w.Paused() {
			if !sleep(ctx, w.portInterval) {
				return
			}
			continue
		}

		if !sleep(ctx, w.settle+w.config.Interval) {
			return
		}

		if err := w.read(ctx, name); err != nil && ctx.Err() == nil {
			w.logDebug("serial log "+name, err)
			if !sleep(ctx, w.config.Interval) {
				return
			}
		}
	}
}

func (w *SerialLogWatcher) findPort() (string, error) {
	ports, err := w.list()
	if err != nil {
		return "", err
	}

	vid := fmt.Sprintf("%04X", w.vid)
	pid := fmt.Sprintf("%04X", w.pid)
	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			return p.Name, nil
		}
	}
	return "", nil
}

// read copies lines from the port until an error, cancellation or Pause.
func (w *SerialLogWatcher) read(ctx context.Context, name string) error {
	port, err := w.open(name, &serial.Mode{
		BaudRate: DefaultSerialBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return err
	}
	defer func() { _ = port.Close() }()

	if err := port.SetReadTimeout(DefaultPortInterval); err != nil {
		return err
	}

	if w.config.Logger != nil {
		w.config.Logger.Info().Str("port", name).Msg("serial log opened")
	}

	var pending []byte
	buf := make([]byte, 256)
	for ctx.Err() == nil && !w.Paused() {
		n, err := port.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			line := strings.ToValidUTF8(string(pending[:i]), "\uFFFD")
			line = strings.TrimRight(line, " \t\r\n")
			pending = pending[i+1:]

			if ctx.Err() != nil {
				return nil
			}
			deliver(w.config.Dispatcher, func() { w.onLine(line) })
		}
	}
	return nil
}

func (w *SerialLogWatcher) logDebug(msg string, err error) {
	if w.config.Logger == nil {
		return
	}
	w.config.Logger.Debug().Err(err).Msg(msg)
}
