package audit

import "context"

// traceCtxKey avoids collisions with context keys defined by other packages.
type traceCtxKey int

const (
	traceIDKey traceCtxKey = iota
	spanIDKey
)

// WithTraceID attaches a trace identifier to ctx for audit event correlation.
// The runtime has no distributed tracer of its own; callers that do carry one
// (a channel adapter fronted by a gateway, for instance) can still thread its
// trace ID through here without this package depending on that tracer.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID attaches a span identifier to ctx for audit event correlation.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// GetTraceID returns the trace ID carried by ctx, or "" if none was attached.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// GetSpanID returns the span ID carried by ctx, or "" if none was attached.
func GetSpanID(ctx context.Context) string {
	id, _ := ctx.Value(spanIDKey).(string)
	return id
}
