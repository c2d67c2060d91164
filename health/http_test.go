package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveMux(agg *Aggregator) *http.ServeMux {
	mux := http.NewServeMux()
	Mount(mux, "/actuator/health", agg)
	return mux
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandler_Aggregate(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		code   int
		status string
	}{
		{"up", Up("ok"), http.StatusOK, "UP"},
		{"degraded", Degraded("soon"), http.StatusOK, "DEGRADED"},
		{"down", Down("gone", ErrCertificateExpired), http.StatusServiceUnavailable, "DOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(0)
			agg.Register(fixed("tls", tt.result))

			rec := do(t, serveMux(agg), http.MethodGet, "/actuator/health")
			if rec.Code != tt.code {
				t.Errorf("status code = %d, want %d", rec.Code, tt.code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var resp Response
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("status = %q, want %q", resp.Status, tt.status)
			}
			if resp.Components["tls"].Status != tt.status {
				t.Errorf("components.tls.status = %q, want %q", resp.Components["tls"].Status, tt.status)
			}
			if tt.result.Error != nil && resp.Components["tls"].Error == "" {
				t.Error("components.tls.error empty")
			}
		})
	}
}

func TestHandler_Component(t *testing.T) {
	agg := NewAggregator(0)
	agg.Register(fixed("material", Degraded("changed")))
	mux := serveMux(agg)

	rec := do(t, mux, http.MethodGet, "/actuator/health/material")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	var c ComponentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Status != "DEGRADED" || c.Message != "changed" {
		t.Errorf("component = %+v", c)
	}

	if rec := do(t, mux, http.MethodGet, "/actuator/health/unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown component status code = %d, want 404", rec.Code)
	}
}

func TestHandler_Liveness(t *testing.T) {
	agg := NewAggregator(0)
	agg.Register(fixed("tls", Down("expired", ErrCertificateExpired)))

	rec := do(t, serveMux(agg), http.MethodGet, "/actuator/health/liveness")
	if rec.Code != http.StatusOK {
		t.Errorf("liveness status code = %d, want 200 regardless of components", rec.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	rec := do(t, serveMux(NewAggregator(0)), http.MethodPost, "/actuator/health")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want 405", rec.Code)
	}
}
