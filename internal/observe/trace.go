package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/scriptvox/pkg/types"
)

// scope is the instrumentation scope for spans and meters.
const scope = "github.com/MrWong99/scriptvox"

type botIDKey struct{}

// WithBotID tags ctx with the bot a request acts on. Spans started from ctx
// and loggers built by [Logger] carry the ID.
func WithBotID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, botIDKey{}, id)
}

// BotID returns the bot ID set by [WithBotID], or "".
func BotID(ctx context.Context) string {
	id, _ := ctx.Value(botIDKey{}).(string)
	return id
}

// StartSpan starts a span on the global tracer provider. The caller must end
// it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if id := BotID(ctx); id != "" {
		attrs = append(attrs, attribute.String("bot.id", id))
	}
	return otel.Tracer(scope).Start(ctx, name, trace.WithAttributes(attrs...))
}

// TraceID returns the hex trace ID of the active span in ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id, span_id and bot_id
// attached when ctx carries them.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	if id := BotID(ctx); id != "" {
		l = l.With("bot_id", id)
	}
	return l
}

// Fail marks span as failed and tags it with the error kind. Nil is a no-op.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.kind", string(types.KindOf(err))))
}
