// Package util provides shared logging and statistics helpers.
package util

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm prefixed printers.
// All output goes to stderr by default (pterm's default).

func LogTrace(format string, args ...interface{}) {
	pterm.DefaultLogger.Trace(fmt.Sprintf(format, args...))
}

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// EnableTrace additionally shows trace output, including pion internals.
func EnableTrace() {
	pterm.DefaultLogger.Level = pterm.LogLevelTrace
}

// PionLoggerFactory routes pion's internal logging into the pterm logger.
// Each pion subsystem gets its scope as a message prefix.
type PionLoggerFactory struct{}

var _ logging.LoggerFactory = PionLoggerFactory{}

func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{prefix: "[pion/" + scope + "] "}
}

type pionLogger struct {
	prefix string
}

// pion is chatty at info level; it is demoted to debug so a normal run only
// shows our own lines.
func (l pionLogger) Trace(msg string)                          { LogTrace("%s%s", l.prefix, msg) }
func (l pionLogger) Tracef(format string, args ...interface{}) { LogTrace(l.prefix+format, args...) }
func (l pionLogger) Debug(msg string)                          { LogTrace("%s%s", l.prefix, msg) }
func (l pionLogger) Debugf(format string, args ...interface{}) { LogTrace(l.prefix+format, args...) }
func (l pionLogger) Info(msg string)                           { LogDebug("%s%s", l.prefix, msg) }
func (l pionLogger) Infof(format string, args ...interface{})  { LogDebug(l.prefix+format, args...) }
func (l pionLogger) Warn(msg string)                           { LogWarning("%s%s", l.prefix, msg) }
func (l pionLogger) Warnf(format string, args ...interface{})  { LogWarning(l.prefix+format, args...) }
func (l pionLogger) Error(msg string)                          { LogError("%s%s", l.prefix, msg) }
func (l pionLogger) Errorf(format string, args ...interface{}) { LogError(l.prefix+format, args...) }
