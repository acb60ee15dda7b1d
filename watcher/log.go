package watcher

import (
	"context"
	"strings"
	"sync"

	"github.com/moffa90/go-devlink/device"
	"github.com/moffa90/go-devlink/protocol"
)

// PartialLineWarning is delivered in place of a line fragment that was
// discarded when the log stream restarted.
const PartialLineWarning = "<Warning, log ended with partial line>"

// LogSource yields chunks of the device-resident log. *device.Client
// implements it.
type LogSource interface {
	ReadLogChunk(ctx context.Context) (*protocol.LogPart, error)
}

// LogWatcher drains the log of the bound source every interval and delivers
// each complete line, without its line terminator, in order.
//
// A fragment without a trailing newline is carried into the next chunk, also
// across drain sessions: the device often ends a session mid-line. A failed
// read ends the current session only.
type LogWatcher struct {
	loop

	onLine func(string)

	mu      sync.Mutex
	source  LogSource
	partial string
}

// NewLogWatcher returns an unbound log watcher.
func NewLogWatcher(onLine func(string), opts ...Option) *LogWatcher {
	if onLine == nil {
		onLine = func(string) {}
	}
	return &LogWatcher{
		loop:   loop{name: "log", config: newConfig(opts)},
		onLine: onLine,
	}
}

// SetSource binds the watcher to src, or unbinds it when src is nil.
// Changing the source discards any pending fragment.
func (w *LogWatcher) SetSource(src LogSource) {
	w.mu.Lock()
	if w.source == src {
		w.mu.Unlock()
		return
	}
	w.source = src
	lost := w.resetLocked()
	w.mu.Unlock()

	if lost {
		deliver(w.config.Dispatcher, func() { w.onLine(PartialLineWarning) })
	}
}

// Bind binds the watcher to a client, or unbinds it when c is nil.
func (w *LogWatcher) Bind(c *device.Client) {
	if c == nil {
		w.SetSource(nil)
		return
	}
	w.SetSource(c)
}

// Start launches the watcher goroutine. A fragment left over from a previous
// run is discarded.
func (w *LogWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	lost := w.resetLocked()
	w.mu.Unlock()

	if lost {
		deliver(w.config.Dispatcher, func() { w.onLine(PartialLineWarning) })
	}
	return w.start(ctx, w.run)
}

func (w *LogWatcher) resetLocked() bool {
	lost := w.partial != ""
	w.partial = ""
	return lost
}

func (w *LogWatcher) run(ctx context.Context) {
	for ctx.Err() == nil {
		w.mu.Lock()
		src := w.source
		w.mu.Unlock()

		if src != nil {
			w.drain(ctx, src)
		}

		if !sleep(ctx, w.config.Interval) {
			return
		}
	}
}

// drain reads chunks until the device reports the log as finished.
func (w *LogWatcher) drain(ctx context.Context, src LogSource) {
	for ctx.Err() == nil {
		var part *protocol.LogPart
		var err error
		if !w.poll(func() { part, err = src.ReadLogChunk(ctx) }) {
			return
		}

		if err != nil {
			w.logReadError(ctx, err)
			return
		}

		// A chunk read after Stop is dropped before it touches the cursor.
		if ctx.Err() != nil {
			return
		}
		lines, ok := w.feed(src, part.Text)
		if !ok {
			return
		}
		for _, line := range lines {
			line := line
			deliver(w.config.Dispatcher, func() { w.onLine(line) })
		}

		if part.Finished {
			return
		}
	}
}

// feed appends chunk to the pending fragment and returns the complete lines.
// It reports false when src is no longer the bound source.
func (w *LogWatcher) feed(src LogSource, chunk string) ([]string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.source != src {
		return nil, false
	}

	data := w.partial + chunk
	var lines []string
	for {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.Trim(data[:i], "\r\n"))
		data = data[i+1:]
	}
	w.partial = data
	return lines, true
}

func (w *LogWatcher) logReadError(ctx context.Context, err error) {
	if w.config.Logger == nil || ctx.Err() != nil {
		return
	}
	if device.IsTimeout(err) || device.IsDisconnected(err) {
		w.config.Logger.Debug().Err(err).Msg("log read ended")
		return
	}
	w.config.Logger.Warn().Err(err).Msg("log read error")
}
