package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// SpanPrefix is prepended to every operation span name.
const SpanPrefix = "fhirgate."

// Tracer wraps OpenTelemetry tracing with operation-named spans.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: End must be best-effort and must not panic.
type Tracer interface {
	// Start starts a span named SpanPrefix+op.
	Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// End ends the span, recording err if non-nil.
	End(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	all = append(all, attribute.String("fhirgate.operation", op))
	all = append(all, attrs...)

	return t.tracer.Start(ctx, SpanPrefix+op,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) End(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NopTracer returns a tracer whose spans are never recorded.
func NopTracer() Tracer {
	return NewTracer(tracenoop.NewTracerProvider().Tracer("noop"))
}
