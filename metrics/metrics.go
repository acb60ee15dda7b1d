// Package metrics defines the counters and gauges the device stack reports.
package metrics

import "time"

// Exchange results.
const (
	ResultOK           = "ok"
	ResultTimeout      = "timeout"
	ResultNotConnected = "not_connected"
	ResultMalformed    = "malformed"
	ResultError        = "error"
)

// Watcher states.
const (
	StateListening  = "listening"
	StateMonitoring = "monitoring"
	StatePaused     = "paused"
	StateStopped    = "stopped"
)

type Metrics interface {
	// Exchange records one command round trip.
	Exchange(family string, transport string, result string, d time.Duration)

	// SchemaDrift records a response longer than its schema.
	SchemaDrift(family string, command string)

	// WatcherState records a watcher state transition.
	WatcherState(name string, state string)

	// FlashProgress records the percent complete of a flash phase.
	FlashProgress(family string, phase string, percent int)

	// FlashResult records the outcome of a firmware update.
	FlashResult(family string, path string, ok bool)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Exchange(string, string, string, time.Duration) {}
func (Noop) SchemaDrift(string, string)                     {}
func (Noop) WatcherState(string, string)                    {}
func (Noop) FlashProgress(string, string, int)              {}
func (Noop) FlashResult(string, string, bool)               {}

// OrNoop returns m, or Noop when m is nil.
func OrNoop(m Metrics) Metrics {
	if m == nil {
		return Noop{}
	}
	return m
}

// Tee fans every call out to each of ms.
func Tee(ms ...Metrics) Metrics {
	switch len(ms) {
	case 0:
		return Noop{}
	case 1:
		return ms[0]
	}
	return tee(ms)
}

type tee []Metrics

func (t tee) Exchange(family string, transport string, result string, d time.Duration) {
	for _, m := range t {
		m.Exchange(family, transport, result, d)
	}
}

func (t tee) SchemaDrift(family string, command string) {
	for _, m := range t {
		m.SchemaDrift(family, command)
	}
}

func (t tee) WatcherState(name string, state string) {
	for _, m := range t {
		m.WatcherState(name, state)
	}
}

func (t tee) FlashProgress(family string, phase string, percent int) {
	for _, m := range t {
		m.FlashProgress(family, phase, percent)
	}
}

func (t tee) FlashResult(family string, path string, ok bool) {
	for _, m := range t {
		m.FlashResult(family, path, ok)
	}
}
