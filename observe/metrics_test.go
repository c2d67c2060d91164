package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func attr(set attribute.Set, key string) string {
	v, ok := set.Value(attribute.Key(key))
	if !ok {
		return ""
	}
	return v.Emit()
}

func TestMetrics_RecordDecision(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDecision(ctx, true, "")
	m.RecordDecision(ctx, false, "invalid token")
	m.RecordDecision(ctx, false, "invalid token")

	met := findMetric(collect(t, reader), MetricAuthDecisions)
	if met == nil {
		t.Fatalf("metric %s not found", MetricAuthDecisions)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", met.Data)
	}

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		counts[attr(dp.Attributes, "outcome")+"/"+attr(dp.Attributes, "reason")] = dp.Value
	}
	if counts["allow/"] != 1 {
		t.Errorf("allow count = %d, want 1", counts["allow/"])
	}
	if counts["deny/invalid token"] != 2 {
		t.Errorf("deny count = %d, want 2", counts["deny/invalid token"])
	}
}

func TestMetrics_RecordTokenAcquisition(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTokenAcquisition(ctx, 15*time.Millisecond, nil)
	m.RecordTokenAcquisition(ctx, 5*time.Millisecond, errors.New("boom"))

	rm := collect(t, reader)

	met := findMetric(rm, MetricTokenAcquisitions)
	if met == nil {
		t.Fatalf("metric %s not found", MetricTokenAcquisitions)
	}
	sum := met.Data.(metricdata.Sum[int64])
	outcomes := map[string]int64{}
	for _, dp := range sum.DataPoints {
		outcomes[attr(dp.Attributes, "outcome")] = dp.Value
	}
	if outcomes["success"] != 1 || outcomes["failure"] != 1 {
		t.Errorf("outcomes = %v, want one success and one failure", outcomes)
	}

	hist := findMetric(rm, MetricTokenDuration)
	if hist == nil {
		t.Fatalf("metric %s not found", MetricTokenDuration)
	}
	h := hist.Data.(metricdata.Histogram[float64])
	var total uint64
	for _, dp := range h.DataPoints {
		total += dp.Count
	}
	if total != 2 {
		t.Errorf("histogram count = %d, want 2", total)
	}
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	m.RecordDecision(context.Background(), true, "")
	m.RecordTokenAcquisition(context.Background(), time.Second, nil)
	m.RecordOperation(context.Background(), "op", time.Second, nil)
}
