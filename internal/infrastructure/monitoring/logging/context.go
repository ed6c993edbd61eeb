package logging

import (
	"context"
	"time"
)

// FieldRequestID is the key under which request identifiers are logged.
const FieldRequestID = "request_id"

type requestIDKey struct{}

// WithRequestID stores id in ctx for later FromContext calls.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns l enriched with the request id carried by ctx.
func FromContext(ctx context.Context, l Logger) Logger {
	l = OrNop(l)
	if id := RequestIDFromContext(ctx); id != "" {
		return l.With(String(FieldRequestID, id))
	}
	return l
}

// LogOperationDuration logs the elapsed time since start.  Operations slower
// than a second are logged at warn.
func LogOperationDuration(l Logger, operation string, start time.Time) {
	elapsed := time.Since(start)
	fields := []Field{String("operation", operation), Int64("duration_ms", elapsed.Milliseconds())}
	if elapsed > time.Second {
		OrNop(l).Warn("slow operation", fields...)
		return
	}
	OrNop(l).Info("operation completed", fields...)
}
