// Package definition holds small cross-cutting contracts — logging and
// filesystem access — that every other package in the module depends on
// but that should stay swappable for tests.
package definition

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface used throughout the broker. It keeps the
// same leveled, printf-style surface the protocol layer has always used,
// just backed by a structured logger instead of the standard library's
// *log.Logger.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})

	// WithField returns a derived Logger that always attaches key/value to
	// every record, e.g. the endpoint's node id or a store's name.
	WithField(key string, value interface{}) Logger
}

// DefaultLogger is the logger installed when a caller does not supply its
// own. It wraps logrus so records carry level, timestamp and fields instead
// of a bare prefixed line.
type DefaultLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger builds a DefaultLogger writing to stderr at info level.
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{entry: logrus.NewEntry(l)}
}

// ToggleDebug flips the logger between info and debug verbosity.
func (l *DefaultLogger) ToggleDebug(on bool) bool {
	if on {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return on
}

func (l *DefaultLogger) Info(v ...interface{})                   { l.entry.Info(v...) }
func (l *DefaultLogger) Infof(format string, v ...interface{})   { l.entry.Infof(format, v...) }
func (l *DefaultLogger) Warn(v ...interface{})                   { l.entry.Warn(v...) }
func (l *DefaultLogger) Warnf(format string, v ...interface{})   { l.entry.Warnf(format, v...) }
func (l *DefaultLogger) Error(v ...interface{})                  { l.entry.Error(v...) }
func (l *DefaultLogger) Errorf(format string, v ...interface{})  { l.entry.Errorf(format, v...) }
func (l *DefaultLogger) Debug(v ...interface{})                  { l.entry.Debug(v...) }
func (l *DefaultLogger) Debugf(format string, v ...interface{})  { l.entry.Debugf(format, v...) }
func (l *DefaultLogger) Fatal(v ...interface{})                  { l.entry.Fatal(v...) }
func (l *DefaultLogger) Fatalf(format string, v ...interface{})  { l.entry.Fatalf(format, v...) }

func (l *DefaultLogger) WithField(key string, value interface{}) Logger {
	return &DefaultLogger{entry: l.entry.WithField(key, value)}
}
