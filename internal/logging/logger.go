package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogrusLogger builds the service logger handed to pipeline stages.
// format is "json" or "text".
func NewLogrusLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(ParseLogrusLevel(level))
	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// NewDiscardLogger returns a logger that drops everything. Used in tests.
func NewDiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// StandardLogger emits lifecycle and business events in a fixed shape,
// either as JSON on stdout or through OpenTelemetry.
type StandardLogger struct {
	logger   *slog.Logger
	shutdown func(context.Context) error
}

// NewStandardLogger creates a JSON stdout logger.
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	return newStandardLoggerWithWriter(os.Stdout, logLevel, environment)
}

func newStandardLoggerWithWriter(w io.Writer, logLevel string, environment string) *StandardLogger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: getSlogLevel(logLevel),
	}))
	if environment != "" {
		logger = logger.With("environment", environment)
	}
	return &StandardLogger{logger: logger}
}

// NewStandardOTLPLogger creates a logger backed by an OTLP log provider. It
// falls back to stdout JSON when the exporter cannot be created.
func NewStandardOTLPLogger(config OTLPConfig) *StandardLogger {
	provider, err := NewOTLPLogProvider(config)
	if err != nil || provider == nil {
		return NewStandardLogger(config.LogLevel, config.Environment)
	}
	handler := NewOTLPHandler(provider.Logger(config.ServiceName))
	return &StandardLogger{
		logger:   slog.New(handler),
		shutdown: provider.Shutdown,
	}
}

// WithComponent creates a logger with component context
func (l *StandardLogger) WithComponent(componentName string) *slog.Logger {
	return l.logger.With("component", componentName)
}

// WithRunID creates a logger scoped to one forecast run
func (l *StandardLogger) WithRunID(runID string) *slog.Logger {
	return l.logger.With("run_id", runID)
}

// WithError creates a logger with error context
func (l *StandardLogger) WithError(err error) *slog.Logger {
	return l.logger.With("error", err.Error())
}

// LogStartup logs application startup information
func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.Info("Application startup",
		"service", serviceName,
		"version", version,
		"port", port,
		"event", "startup",
	)
}

// LogShutdown logs application shutdown information
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.Info("Application shutdown",
		"service", serviceName,
		"reason", reason,
		"event", "shutdown",
	)
}

// LogResourceStats logs resource statistics in a standardized format
func (l *StandardLogger) LogResourceStats(serviceName string, stats map[string]interface{}) {
	l.logger.Info("Resource statistics",
		"service", serviceName,
		"stats", stats,
		"event", "resource",
	)
}

// LogBusinessEvent logs business events in a standardized format
func (l *StandardLogger) LogBusinessEvent(eventType string, details map[string]interface{}) {
	fields := []interface{}{
		"event", "business_event",
		"type", eventType,
	}
	for k, v := range details {
		fields = append(fields, k, v)
	}
	l.logger.Info("Business event", fields...)
}

// Logger returns the underlying *slog.Logger
func (l *StandardLogger) Logger() *slog.Logger {
	return l.logger
}

// Shutdown flushes the OTLP provider if there is one.
func (l *StandardLogger) Shutdown(ctx context.Context) error {
	if l.shutdown != nil {
		return l.shutdown(ctx)
	}
	return nil
}

// getSlogLevel converts string level to slog.Level
func getSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
