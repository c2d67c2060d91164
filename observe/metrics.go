package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	MetricAuthDecisions     = "fhirgate.auth.decisions"
	MetricTokenAcquisitions = "fhirgate.token.acquisitions"
	MetricTokenDuration     = "fhirgate.token.acquire.duration_ms"
	MetricOperationDuration = "fhirgate.operation.duration_ms"
)

// Metrics records the gateway's counters and histograms.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordDecision counts one authorization decision.
	RecordDecision(ctx context.Context, allow bool, reason string)

	// RecordTokenAcquisition counts one token request and its latency.
	RecordTokenAcquisition(ctx context.Context, duration time.Duration, err error)

	// RecordOperation records the latency of a named operation.
	RecordOperation(ctx context.Context, op string, duration time.Duration, err error)
}

type metricsImpl struct {
	decisions    metric.Int64Counter
	acquisitions metric.Int64Counter
	tokenHist    metric.Float64Histogram
	opHist       metric.Float64Histogram
}

// NewMetrics creates the gateway instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	decisions, err := meter.Int64Counter(
		MetricAuthDecisions,
		metric.WithDescription("Authorization decisions by outcome and reason"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	acquisitions, err := meter.Int64Counter(
		MetricTokenAcquisitions,
		metric.WithDescription("Token endpoint requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	tokenHist, err := meter.Float64Histogram(
		MetricTokenDuration,
		metric.WithDescription("Token acquisition latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	opHist, err := meter.Float64Histogram(
		MetricOperationDuration,
		metric.WithDescription("Operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		decisions:    decisions,
		acquisitions: acquisitions,
		tokenHist:    tokenHist,
		opHist:       opHist,
	}, nil
}

func (m *metricsImpl) RecordDecision(ctx context.Context, allow bool, reason string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome(allow)),
		attribute.String("reason", reason),
	))
}

func (m *metricsImpl) RecordTokenAcquisition(ctx context.Context, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	opt := metric.WithAttributes(attribute.String("outcome", result))
	m.acquisitions.Add(ctx, 1, opt)
	m.tokenHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordOperation(ctx context.Context, op string, duration time.Duration, err error) {
	m.opHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("error", err != nil),
	))
}

func outcome(ok bool) string {
	if ok {
		return "allow"
	}
	return "deny"
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return noopMetrics{} }

type noopMetrics struct{}

func (noopMetrics) RecordDecision(context.Context, bool, string)                  {}
func (noopMetrics) RecordTokenAcquisition(context.Context, time.Duration, error)  {}
func (noopMetrics) RecordOperation(context.Context, string, time.Duration, error) {}
