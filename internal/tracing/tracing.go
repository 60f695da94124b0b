package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracerName is the default name used when acquiring a tracer instance.
const tracerName = "strand"

// GetTracer returns a named tracer from the globally configured provider,
// falling back to a NoOp tracer when none is set. Injecting a TracerProvider
// is preferred; this exists for components that only have a context.
func GetTracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// RecordError marks the span as failed and records err on it. Nil spans,
// non-recording spans and nil errors are all safe no-ops.
func RecordError(span oteltrace.Span, err error) {
	if span == nil || !span.IsRecording() || err == nil {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

// SetResultAttributes annotates a module-call or group span with the
// interpreter outcome: the textual result code and the folded priority.
func SetResultAttributes(span oteltrace.Span, code string, priority int) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("strand.rcode", code),
		attribute.Int("strand.priority", priority),
	)
}
