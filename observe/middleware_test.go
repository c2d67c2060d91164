package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMiddleware_Around(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	m, reader := newTestMetrics(t)
	var buf bytes.Buffer

	mw := NewMiddleware(NewTracer(tp.Tracer("test")), m, NewLoggerWithWriter("debug", &buf))

	boom := errors.New("boom")
	err := mw.Around(context.Background(), "token.acquire", func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Around() error = %v, want %v", err, boom)
	}
	if err := mw.Around(context.Background(), "tls.build", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Around() error = %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name() != "fhirgate.token.acquire" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Ok {
		t.Errorf("span status = %v, want Ok", spans[1].Status().Code)
	}

	if findMetric(collect(t, reader), MetricOperationDuration) == nil {
		t.Error("operation histogram not recorded")
	}

	out := buf.String()
	if !strings.Contains(out, `"msg":"operation failed"`) || !strings.Contains(out, `"error":"boom"`) {
		t.Errorf("log output = %q", out)
	}
	if !strings.Contains(out, `"trace_id"`) {
		t.Errorf("log output missing trace_id: %q", out)
	}
}

func TestMiddleware_EmptyOperation(t *testing.T) {
	mw := NewMiddleware(nil, nil, nil)
	called := false
	err := mw.Around(context.Background(), "", func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrMissingOperation) {
		t.Errorf("Around() error = %v, want %v", err, ErrMissingOperation)
	}
	if called {
		t.Error("fn called for empty operation")
	}
}

func TestMiddlewareFromObserver_Nil(t *testing.T) {
	if _, err := MiddlewareFromObserver(nil); !errors.Is(err, ErrNilObserver) {
		t.Errorf("MiddlewareFromObserver(nil) error = %v, want %v", err, ErrNilObserver)
	}
}
