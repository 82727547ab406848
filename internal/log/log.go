// Package log provides the process logger, a logrus adapter behind a small
// interface. Log output goes to stderr; stdout is reserved for reports.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"firestige.xyz/usbcmp/internal/config"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

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

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var logger Logger = func() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}()

// GetLogger returns the process logger. Before Init it logs text at info
// level to stderr.
func GetLogger() Logger {
	return logger
}

// Init replaces the process logger according to cfg.
func Init(cfg config.LogConfig) error {
	l, err := New(cfg, os.Stderr)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// New builds a logger writing to out plus any file output enabled in cfg.
func New(cfg config.LogConfig, out io.Writer) (Logger, error) {
	return initByConfig(cfg, out)
}
