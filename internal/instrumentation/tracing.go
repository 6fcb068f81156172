package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for calmerge.
const TracerName = "github.com/teemow/calmerge"

// Span attribute keys.
const (
	// SpanAttrSource is the event source kind (file, ics, google).
	SpanAttrSource = "calmerge.source"

	// SpanAttrSourceName is the configured name of a source.
	SpanAttrSourceName = "calmerge.source_name"

	// SpanAttrOperation is the source operation.
	SpanAttrOperation = "calmerge.operation"

	// SpanAttrViewer is the anonymized viewer.
	SpanAttrViewer = "calmerge.viewer"

	// SpanAttrItems is the number of items produced.
	SpanAttrItems = "calmerge.items"

	// SpanAttrDay is the queried day (YYYY-MM-DD).
	SpanAttrDay = "calmerge.day"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 6),
	}
}

// WithViewer adds the anonymized viewer. Empty values are skipped.
func (b *SpanAttributeBuilder) WithViewer(hash string) *SpanAttributeBuilder {
	if hash != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrViewer, hash))
	}
	return b
}

// WithSourceName adds the configured source name. Empty values are skipped.
func (b *SpanAttributeBuilder) WithSourceName(name string) *SpanAttributeBuilder {
	if name != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrSourceName, name))
	}
	return b
}

// WithItems adds a result count.
func (b *SpanAttributeBuilder) WithItems(n int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int(SpanAttrItems, n))
	return b
}

// WithDay adds the queried day.
func (b *SpanAttributeBuilder) WithDay(day string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrDay, day))
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span with the given name and attributes.
// The caller is responsible for ending the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSourceSpan starts a client span for a call into an event source,
// named "source.<source>.<operation>".
func StartSourceSpan(ctx context.Context, source, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrSource, source),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "source."+source+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
