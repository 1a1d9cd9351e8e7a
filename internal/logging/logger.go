package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Logger is the interface for logging
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Fields is an alias so callers do not import logrus directly.
type Fields = log.Fields

func Init(level string) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	// default info
	l, err := log.ParseLevel(level)
	if err != nil {
		l = log.InfoLevel
	}
	log.SetLevel(l)
}

func L() *log.Logger { return log.StandardLogger() }

// NewDefaultLogger creates a default logger
func NewDefaultLogger() Logger {
	return log.StandardLogger()
}

// WithFields returns a logger that attaches fields to every entry. Loggers
// that are not logrus-backed are returned unchanged.
func WithFields(logger Logger, fields Fields) Logger {
	switch l := logger.(type) {
	case *log.Logger:
		return l.WithFields(fields)
	case *log.Entry:
		return l.WithFields(fields)
	default:
		return logger
	}
}

// NewNopLogger discards everything; used by tests.
func NewNopLogger() Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}
