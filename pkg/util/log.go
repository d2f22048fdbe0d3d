package util

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger instance
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLogLevel sets the logging level
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetLogOutput sets the log output destination
func SetLogOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat enables JSON log format
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// WithField returns a logger with a field
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithConnector returns a logger with connector context
func WithConnector(id string) *logrus.Entry {
	return Logger.WithField("connector", id)
}

// WithRequest returns a logger with command-request context
func WithRequest(requestID string) *logrus.Entry {
	return Logger.WithField("request", requestID)
}

// Warnf logs a formatted warning on the global logger
func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

// LoggerProvider produces a contextual logger for a connector id.
// The controller injects one into the connector factory so every
// constructed connector logs with its own identity attached.
type LoggerProvider interface {
	GetLogger(id string) logrus.FieldLogger
}

type loggerProvider struct {
	base *logrus.Logger
}

// NewLoggerProvider returns a provider that derives per-connector
// loggers from base. A nil base uses the global Logger.
func NewLoggerProvider(base *logrus.Logger) LoggerProvider {
	if base == nil {
		base = Logger
	}
	return &loggerProvider{base: base}
}

func (p *loggerProvider) GetLogger(id string) logrus.FieldLogger {
	return p.base.WithField("connector", id)
}

// NopLogger returns a logger that discards all output. Connectors
// start with one so logging is safe before a provider is attached.
func NopLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
