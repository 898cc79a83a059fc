package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

type Logger = *logrus.Logger

type Fields = logrus.Fields

// New returns a JSON logger writing to stdout and, when logFile is set, appending
// to that file as well so past publish runs can be inspected later.
func New(service, logFile string) (Logger, io.Closer, error) {
	return NewWithConsole(service, logFile, os.Stdout)
}

// NewWithConsole is New with the console output replaced, e.g. by stderr for a
// CLI whose stdout carries results.
func NewWithConsole(service, logFile string, console io.Writer) (Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})
	logger.SetLevel(levelFromEnv())

	if logFile == "" {
		logger.SetOutput(console)
		return withService(logger, service), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(console, f))

	return withService(logger, service), f, nil
}

// Discard is a logger for tests and library callers that do not want output.
func Discard() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func withService(logger *logrus.Logger, service string) *logrus.Logger {
	if service != "" {
		logger.AddHook(serviceHook(service))
	}
	return logger
}

type serviceHook string

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = string(h)
	}
	return nil
}

func levelFromEnv() logrus.Level {
	lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
