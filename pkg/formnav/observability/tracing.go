package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrFormID   = attribute.Key("form.id")
	AttrNavLevel = attribute.Key("nav.level")
	AttrKind     = attribute.Key("event.kind")
	AttrEventID  = attribute.Key("event.id")
)

// tracer delegates to whatever provider is installed globally, including
// one installed after this package is loaded.
var tracer = otel.Tracer("formnav")

// SpanManager opens the spans of form navigation. A transition span covers
// a changing/changed pair; each dispatched event gets an emit span below it.
// Events checked outside an Emitter (CLI, journal replay) get a check span.
type SpanManager interface {
	StartTransitionSpan(ctx context.Context, formID, level string) (context.Context, trace.Span)
	StartEmitSpan(ctx context.Context, kind, eventID string) (context.Context, trace.Span)
	StartCheckSpan(ctx context.Context, formID, kind, eventID string) (context.Context, trace.Span)

	// EndSpanWithError ends span with status Ok, or Error when err is set.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent annotates the span in ctx, if it is recording.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager backed by the global OpenTelemetry
// tracer provider. Without one installed the spans are no-ops.
func NewSpanManager() SpanManager {
	return otelSpanManager{}
}

func startSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

func (otelSpanManager) StartTransitionSpan(ctx context.Context, formID, level string) (context.Context, trace.Span) {
	return startSpan(ctx, "formnav.transition", trace.SpanKindInternal,
		AttrFormID.String(formID), AttrNavLevel.String(level))
}

func (otelSpanManager) StartEmitSpan(ctx context.Context, kind, eventID string) (context.Context, trace.Span) {
	return startSpan(ctx, "formnav.emit", trace.SpanKindProducer,
		AttrKind.String(kind), AttrEventID.String(eventID))
}

func (otelSpanManager) StartCheckSpan(ctx context.Context, formID, kind, eventID string) (context.Context, trace.Span) {
	return startSpan(ctx, "formnav.check", trace.SpanKindConsumer,
		AttrFormID.String(formID), AttrKind.String(kind), AttrEventID.String(eventID))
}

func (otelSpanManager) EndSpanWithError(span trace.Span, err error) { EndSpanWithError(span, err) }

func (otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// EndSpanWithError sets the span status from err and ends it. A nil span is
// ignored.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err == nil {
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
