package watcher

import (
	"strings"

	"github.com/loopholelabs/logging/types"
)

// Severity is the level implied by a device log line.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// LineSeverity maps the prefix of a device log line to a level: "Warn:" and
// "Warning:" are warnings, "Error:" is an error, anything else is info.
func LineSeverity(line string) Severity {
	switch {
	case strings.HasPrefix(line, "Warn:"), strings.HasPrefix(line, "Warning:"):
		return SeverityWarn
	case strings.HasPrefix(line, "Error:"):
		return SeverityError
	default:
		return SeverityInfo
	}
}

// LogLine re-logs a device log line at the level its prefix implies, with
// prefix prepended.
func LogLine(log types.Logger, line string, prefix string) {
	if log == nil {
		return
	}
	msg := prefix + line
	switch LineSeverity(line) {
	case SeverityWarn:
		log.Warn().Msg(msg)
	case SeverityError:
		log.Error().Msg(msg)
	default:
		log.Info().Msg(msg)
	}
}
