package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Context keys for connection-scoped log fields.
type contextKey string

const (
	// ConnectionIDKey is the context key for connection ids.
	ConnectionIDKey contextKey = "connection_id"

	// ChannelKey is the context key for proxy channel names.
	ChannelKey contextKey = "channel"

	// LegKey is the context key for the connection leg (upstream, downstream).
	LegKey contextKey = "leg"
)

// WithConnectionID adds a connection id to the context.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, id)
}

// GetConnectionID retrieves the connection id from the context.
func GetConnectionID(ctx context.Context) string {
	if id, ok := ctx.Value(ConnectionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithChannel adds a channel name to the context.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ChannelKey, channel)
}

// GetChannel retrieves the channel name from the context.
func GetChannel(ctx context.Context) string {
	if channel, ok := ctx.Value(ChannelKey).(string); ok {
		return channel
	}
	return ""
}

// WithLeg adds the connection leg to the context.
func WithLeg(ctx context.Context, leg string) context.Context {
	return context.WithValue(ctx, LegKey, leg)
}

// GetLeg retrieves the connection leg from the context.
func GetLeg(ctx context.Context) string {
	if leg, ok := ctx.Value(LegKey).(string); ok {
		return leg
	}
	return ""
}

// extractContextFields returns the log attributes carried by ctx.
func extractContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	if id := GetConnectionID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(ConnectionIDKey), id))
	}
	if channel := GetChannel(ctx); channel != "" {
		attrs = append(attrs, slog.String(string(ChannelKey), channel))
	}
	if leg := GetLeg(ctx); leg != "" {
		attrs = append(attrs, slog.String(string(LegKey), leg))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return attrs
}

// ContextHandler adds the connection fields found in the record's context to
// every record.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next}
}

// Enabled reports whether next handles level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle adds context fields and forwards the record.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := extractContextFields(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs returns a handler with additional attributes.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup returns a handler with a group.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}
