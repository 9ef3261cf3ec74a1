package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// Logger is the structured logger used across the service
type Logger interface {
	Info(ctx context.Context, message string, fields map[string]interface{})
	Error(ctx context.Context, message string, err error, fields map[string]interface{})
	Warn(ctx context.Context, message string, fields map[string]interface{})
	Debug(ctx context.Context, message string, fields map[string]interface{})
	WithFields(fields map[string]interface{}) Logger
}

// Config configures the logger
type Config struct {
	Level       string
	Format      string // json, text
	ServiceName string
	Output      io.Writer
	Caller      bool
}

type structuredLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
	caller bool
}

// NewStructuredLogger creates a logrus backed Logger
func NewStructuredLogger(cfg Config) Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		})
	}

	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	} else {
		l.SetOutput(os.Stdout)
	}

	fields := logrus.Fields{}
	if cfg.ServiceName != "" {
		fields["service"] = cfg.ServiceName
	}

	return &structuredLogger{logger: l, fields: fields, caller: cfg.Caller}
}

// NewNop returns a Logger that discards everything
func NewNop() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &structuredLogger{logger: l, fields: logrus.Fields{}}
}

func (l *structuredLogger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.entry(ctx, nil, fields).Info(message)
}

func (l *structuredLogger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	l.entry(ctx, err, fields).Error(message)
}

func (l *structuredLogger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.entry(ctx, nil, fields).Warn(message)
}

func (l *structuredLogger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	l.entry(ctx, nil, fields).Debug(message)
}

// WithFields returns a child logger carrying additional fields
func (l *structuredLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &structuredLogger{logger: l.logger, fields: merged, caller: l.caller}
}

func (l *structuredLogger) entry(ctx context.Context, err error, fields map[string]interface{}) *logrus.Entry {
	all := make(logrus.Fields, len(l.fields)+len(fields)+3)
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}

	if id := CorrelationID(ctx); id != "" {
		all["correlation_id"] = id
	}
	if err != nil {
		all[logrus.ErrorKey] = err.Error()
	}
	if l.caller {
		if pc, file, line, ok := runtime.Caller(2); ok {
			all["caller"] = fmt.Sprintf("%s:%d %s", file, line, runtime.FuncForPC(pc).Name())
		}
	}

	return l.logger.WithFields(all)
}

// WithCorrelationID stores a request correlation id on the context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation id stored on ctx, if any
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// LogPerformance records how long an operation took
func LogPerformance(ctx context.Context, logger Logger, operation string, duration time.Duration, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["operation"] = operation
	fields["duration_ms"] = duration.Milliseconds()

	logger.Debug(ctx, fmt.Sprintf("%s took %s", operation, duration), fields)
}
