package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
)

type logAttrsKey struct{}

// WithLogAttrs returns a context carrying attrs. A ContextHandler adds them to
// every record logged with that context.
func WithLogAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing, _ := ctx.Value(logAttrsKey{}).([]slog.Attr)

	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)

	return context.WithValue(ctx, logAttrsKey{}, merged)
}

// ContextHandler is an [slog.Handler] that injects OpenTelemetry trace context
// (trace_id, span_id), context-scoped attributes and the service name into
// every log record. The service attribute is pre-attached so it stays at the
// top level when groups are used.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps an [slog.Handler].
func NewContextHandler(inner slog.Handler, service string) *ContextHandler {
	return &ContextHandler{
		inner: inner.WithAttrs([]slog.Attr{slog.String(attrService, service)}),
	}
}

// Enabled delegates to the inner handler.
func (ch *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return ch.inner.Enabled(ctx, level)
}

// Handle adds trace and context attributes, then delegates.
func (ch *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	if attrs, ok := ctx.Value(logAttrsKey{}).([]slog.Attr); ok {
		record.AddAttrs(attrs...)
	}

	err := ch.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("context handler: %w", err)
	}

	return nil
}

// WithAttrs returns a new ContextHandler with additional attributes on the inner handler.
func (ch *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		inner: ch.inner.WithAttrs(attrs),
	}
}

// WithGroup returns a new ContextHandler with a group prefix on the inner handler.
func (ch *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{
		inner: ch.inner.WithGroup(name),
	}
}
