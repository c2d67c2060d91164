package observe

import (
	"context"
	"time"
)

// Middleware wraps blocking operations with a span, a latency sample and a
// log line.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	return NewMiddleware(obs.Tracer(), obs.Metrics(), obs.Logger()), nil
}

// Around runs fn inside a span named after op.
func (m *Middleware) Around(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if op == "" {
		return ErrMissingOperation
	}

	ctx, span := m.tracer.Start(ctx, op)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	m.tracer.End(span, err)
	m.metrics.RecordOperation(ctx, op, duration, err)

	fields := []Field{F("operation", op), F("duration_ms", duration.Milliseconds())}
	if err != nil {
		m.logger.Error(ctx, "operation failed", append(fields, Err(err))...)
	} else {
		m.logger.Debug(ctx, "operation completed", fields...)
	}
	return err
}

// Tracer returns the middleware's tracer.
func (m *Middleware) Tracer() Tracer { return m.tracer }

// Metrics returns the middleware's metrics.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger { return m.logger }
