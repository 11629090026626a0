// Package clog provides the conditionally-enabled structured logger used
// throughout dispatchd. It keeps the shape of a small conditional wrapper
// (enable/disable, Printf-style calls) but is backed by logrus.Entry so
// that every log line carries structured fields (at least the component
// name) alongside its message, matching how the rest of this corpus logs.
package clog

import (
	"io/ioutil"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Entry with a component name attached as a
// structured field.
type Logger struct {
	entry *logrus.Entry
}

// New creates a Logger for component, deriving fields from entry. If entry
// is nil, a null logger is used, discarding all output — the same default
// config.ServerConfig.Validate and config.WorkerConfig.Validate use when no
// logger is configured.
func New(component string, entry *logrus.Entry) *Logger {
	if entry == nil {
		entry = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return &Logger{entry: entry.WithField("component", component)}
}

// With returns a Logger with an additional structured field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Info logs at info level.
func (l *Logger) Info(msg string) { l.entry.Info(msg) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string) { l.entry.Error(msg) }

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Fatal logs at fatal level and terminates the process, mirroring
// server.rs's process::exit(1) on a protocol violation.
func (l *Logger) Fatal(msg string) { l.entry.Fatal(msg) }
