// Package plog is a thin structured-logging wrapper shared by the core
// and the CLI, matching the method shape of a minimal io.Writer-backed
// logger while adding logrus's structured fields for solver trace
// output.
package plog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger. The zero value is not usable; use New.
type Logger struct {
	*logrus.Logger
}

// New returns a Logger writing to w at the given level.
func New(w io.Writer, level logrus.Level) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	return &Logger{Logger: l}
}

// Logf logs a formatted line at info level.
func (l *Logger) Logf(format string, args ...interface{}) {
	l.Infof(format, args...)
}

// Logln logs its arguments at info level.
func (l *Logger) Logln(args ...interface{}) {
	l.Infoln(args...)
}
