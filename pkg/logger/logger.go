package logger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

type Logger struct {
	*logrus.Logger
}

type ContextKey string

const RequestIDKey ContextKey = "request_id"

const tenantField = "tenant_id"

func New(level string) *Logger {
	logger := logrus.New()

	// Set log level
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// JSON output; sync and report entries are queried by tenant_id and request_id
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger}
}

// WithContext adds the request ID carried by ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithContext(ctx)

	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		entry = entry.WithField("request_id", requestID)
	}

	return entry
}

// WithTenant scopes an entry to one tenant. Sentry events are tagged with it.
func (l *Logger) WithTenant(ctx context.Context, tenantID string) *logrus.Entry {
	return l.WithContext(ctx).WithField(tenantField, tenantID)
}

// Additional fields
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// EnableSentry initializes the Sentry client and forwards error-level entries
// to it. An empty dsn leaves the logger untouched.
func (l *Logger) EnableSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return fmt.Errorf("failed to init sentry: %w", err)
	}

	l.AddHook(&sentryHook{hub: sentry.CurrentHub()})
	return nil
}

// Flush waits for buffered Sentry events.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

type sentryHook struct {
	hub *sentry.Hub
}

func (h *sentryHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h *sentryHook) Fire(entry *logrus.Entry) error {
	hub := h.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetContext("log", eventExtras(entry))
		if tenant, ok := entry.Data[tenantField].(string); ok {
			scope.SetTag(tenantField, tenant)
		}
		if requestID, ok := entry.Data["request_id"].(string); ok {
			scope.SetTag("request_id", requestID)
		}
		hub.CaptureException(eventError(entry))
	})
	return nil
}

// eventError joins the message with the logged error, if any.
func eventError(entry *logrus.Entry) error {
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
		return fmt.Errorf("%s: %w", entry.Message, err)
	}
	return errors.New(entry.Message)
}

func eventExtras(entry *logrus.Entry) map[string]interface{} {
	extras := make(map[string]interface{}, len(entry.Data))
	for key, value := range entry.Data {
		if _, isErr := value.(error); isErr && key == logrus.ErrorKey {
			continue
		}
		extras[key] = value
	}
	return extras
}
