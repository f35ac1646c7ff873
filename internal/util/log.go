// Package util provides logging and process-wide statistics.
package util

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm.DefaultLogger, which writes to
// stderr unless redirected with SetLogOutput. Messages below the logger's
// level are not formatted at all: pion and per-candidate session traces log
// at debug on hot paths.

func LogDebug(format string, args ...interface{})   { logAt(pterm.LogLevelDebug, format, args) }
func LogInfo(format string, args ...interface{})    { logAt(pterm.LogLevelInfo, format, args) }
func LogSuccess(format string, args ...interface{}) { logAt(pterm.LogLevelInfo, "✓ "+format, args) }
func LogWarning(format string, args ...interface{}) { logAt(pterm.LogLevelWarn, format, args) }
func LogError(format string, args ...interface{})   { logAt(pterm.LogLevelError, format, args) }

func logAt(level pterm.LogLevel, format string, args []interface{}) {
	l := &pterm.DefaultLogger
	if !l.CanPrint(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	switch level {
	case pterm.LogLevelDebug:
		l.Debug(msg)
	case pterm.LogLevelWarn:
		l.Warn(msg)
	case pterm.LogLevelError:
		l.Error(msg)
	default:
		l.Info(msg)
	}
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// SetLogOutput redirects all log output, e.g. to io.Discard in tests.
func SetLogOutput(w io.Writer) {
	pterm.DefaultLogger.Writer = w
}
