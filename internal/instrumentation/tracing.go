package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer name used for all spans of the service.
const TracerName = "github.com/teemow/driveproxy"

// Span attribute keys.
const (
	SpanAttrFileOp    = "driveproxy.file_op"
	SpanAttrService   = "google.service"
	SpanAttrOperation = "google.operation"
	SpanAttrAccount   = "driveproxy.account"
	SpanAttrFileID    = "drive.file_id"
	SpanAttrFolderID  = "drive.folder_id"
	SpanAttrFileCount = "driveproxy.file_count"
)

// SpanAttributeBuilder constructs span attributes with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 6),
	}
}

// WithAccount adds the linked account attribute. Empty values are skipped.
func (b *SpanAttributeBuilder) WithAccount(account string) *SpanAttributeBuilder {
	if account != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrAccount, account))
	}
	return b
}

// WithFile adds the Drive file ID attribute.
func (b *SpanAttributeBuilder) WithFile(fileID string) *SpanAttributeBuilder {
	if fileID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrFileID, fileID))
	}
	return b
}

// WithFolder adds the Drive folder ID attribute.
func (b *SpanAttributeBuilder) WithFolder(folderID string) *SpanAttributeBuilder {
	if folderID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrFolderID, folderID))
	}
	return b
}

// WithFileCount adds the number of files in an upload batch.
func (b *SpanAttributeBuilder) WithFileCount(n int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int(SpanAttrFileCount, n))
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span. The caller must end it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartFileOpSpan starts a server span for a file operation (list, upload,
// retrieve, delete).
func StartFileOpSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrFileOp, op))
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "files."+op,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartGoogleAPISpan starts a client span for a Google API call.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records err on the span and marks it failed.
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

// GetTraceID returns the trace ID of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
