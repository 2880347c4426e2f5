// Package logger provides a context-scoped structured logger shared by every
// component of usernaut-sync.
package logger

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	requestIDKey contextKey = "requestId"
	loggerKey    contextKey = "logger"
)

var base = logrus.New()

// Init configures the package-level logrus instance. Call once at startup.
func Init(level logrus.Level, formatter logrus.Formatter) {
	base.SetLevel(level)
	if formatter != nil {
		base.SetFormatter(formatter)
	}
}

// WithRequestId stores a correlation ID on the context and returns the
// derived context. Pass uuid.Nil to have one generated.
func WithRequestId(ctx context.Context, requestID uuid.UUID) context.Context {
	if requestID == uuid.Nil {
		requestID = uuid.New()
	}
	return context.WithValue(ctx, requestIDKey, requestID.String())
}

// Logger returns a *logrus.Entry scoped to ctx, carrying the request ID
// (if any) as a field.
func Logger(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(loggerKey).(*logrus.Entry); ok {
		return entry
	}

	entry := logrus.NewEntry(base)
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		entry = entry.WithField("request_id", requestID)
	}
	return entry
}
