// Package logging builds the logrus logger shared by the server and the worker.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stdout at the given level. format is
// "json" or "text"; unknown levels fall back to info.
func New(service, level, format string) *logrus.Entry {
	return NewWithWriter(os.Stdout, service, level, format)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(w io.Writer, service, level, format string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(w)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger.WithField("service", service)
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
