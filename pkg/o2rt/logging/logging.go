// Package logging defines the leveled logger interface shared across every
// o2rt subsystem.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the leveled logging contract every subsystem depends on.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	ToggleDebug(value bool) bool
}

// logrusLogger is the default Logger, backed by logrus instead of the
// teacher's bare stdlib *log.Logger.
type logrusLogger struct {
	entry *logrus.Entry
	level *logrus.Logger
}

// NewDefaultLogger returns the default o2rt logger, writing leveled,
// timestamped entries to stderr via logrus.
func NewDefaultLogger(component string) Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &logrusLogger{
		entry: l.WithField("component", component),
		level: l,
	}
}

func (l *logrusLogger) Info(v ...interface{})                       { l.entry.Info(v...) }
func (l *logrusLogger) Infof(format string, v ...interface{})       { l.entry.Infof(format, v...) }
func (l *logrusLogger) Warn(v ...interface{})                       { l.entry.Warn(v...) }
func (l *logrusLogger) Warnf(format string, v ...interface{})       { l.entry.Warnf(format, v...) }
func (l *logrusLogger) Error(v ...interface{})                      { l.entry.Error(v...) }
func (l *logrusLogger) Errorf(format string, v ...interface{})      { l.entry.Errorf(format, v...) }
func (l *logrusLogger) Debug(v ...interface{})                      { l.entry.Debug(v...) }
func (l *logrusLogger) Debugf(format string, v ...interface{})      { l.entry.Debugf(format, v...) }

func (l *logrusLogger) ToggleDebug(value bool) bool {
	if value {
		l.level.SetLevel(logrus.DebugLevel)
	} else {
		l.level.SetLevel(logrus.InfoLevel)
	}
	return value
}
