package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

type stubVerifier struct {
	claims map[string]any
	err    error
	calls  int
}

func (s *stubVerifier) Verify(_ context.Context, raw string) (*DecodedToken, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return NewDecodedToken(s.claims), nil
}

type recordingMetrics struct {
	mu        sync.Mutex
	decisions []Decision
	ops       []string
}

func (m *recordingMetrics) RecordDecision(_ context.Context, allow bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, Decision{Allow: allow, Reason: reason})
}

func (m *recordingMetrics) RecordTokenAcquisition(context.Context, time.Duration, error) {}

func (m *recordingMetrics) RecordOperation(_ context.Context, op string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
}

func newTestEngine(t *testing.T, role string) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{
		RequiredRole: role,
		Verifier:     NewJWTVerifier(JWTConfig{ValidMethods: []string{"HS256"}}, NewStaticKeyProvider(testSecret)),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestNewEngine(t *testing.T) {
	if _, err := NewEngine(EngineConfig{}); !errors.Is(err, ErrNilVerifier) {
		t.Errorf("NewEngine() without verifier error = %v, want ErrNilVerifier", err)
	}

	e, err := NewEngine(EngineConfig{Verifier: &stubVerifier{}})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if e.RequiredRole() != "fhir-api" {
		t.Errorf("RequiredRole() = %q, want fhir-api", e.RequiredRole())
	}
	if e.ClientID() != "hapi-fhir" {
		t.Errorf("ClientID() = %q, want hapi-fhir", e.ClientID())
	}
}

func TestEngine_Evaluate(t *testing.T) {
	e := newTestEngine(t, "fhir-api")
	valid := signHS256(t, roleClaims("hapi-fhir", "fhir-api"))

	tests := []struct {
		name   string
		header string
		allow  bool
		reason string
	}{
		{"no header", "", false, ReasonMissingHeader},
		{"basic scheme", "Basic dXNlcjpwYXNz", false, ReasonMissingHeader},
		{"lowercase scheme", "bearer " + valid, false, ReasonMissingHeader},
		{"scheme without space", "Bearer" + valid, false, ReasonMissingHeader},
		{"empty token", "Bearer ", false, ReasonInvalidToken},
		{"malformed token", "Bearer not.a.jwt", false, ReasonInvalidToken},
		{"expired token", "Bearer " + signHS256(t, func() map[string]any {
			c := roleClaims("hapi-fhir", "fhir-api")
			c["exp"] = time.Now().Add(-time.Minute).Unix()
			return c
		}()), false, ReasonInvalidToken},
		{"role under other client", "Bearer " + signHS256(t, roleClaims("account", "fhir-api")), false, ReasonInsufficient},
		{"no resource_access", "Bearer " + signHS256(t, map[string]any{"sub": "x"}), false, ReasonInsufficient},
		{"other role", "Bearer " + signHS256(t, roleClaims("hapi-fhir", "fhir-read")), false, ReasonInsufficient},
		{"required role", "Bearer " + valid, true, ReasonAllowed},
		{"required role among others", "Bearer " + signHS256(t, roleClaims("hapi-fhir", "a", "fhir-api", "b")), true, ReasonAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Evaluate(context.Background(), tt.header)
			if d.Allow != tt.allow || d.Reason != tt.reason {
				t.Errorf("Evaluate() = {%v %q}, want {%v %q}", d.Allow, d.Reason, tt.allow, tt.reason)
			}
		})
	}
}

func TestEngine_RequiredRoleIsConfiguration(t *testing.T) {
	header := "Bearer " + signHS256(t, roleClaims("hapi-fhir", "fhir-api"))

	if d := newTestEngine(t, "fhir-api").Evaluate(context.Background(), header); !d.Allow {
		t.Errorf("fhir-api engine denied: %q", d.Reason)
	}
	if d := newTestEngine(t, "fhir-admin").Evaluate(context.Background(), header); d.Allow || d.Reason != ReasonInsufficient {
		t.Errorf("fhir-admin engine = {%v %q}, want insufficient permissions", d.Allow, d.Reason)
	}
}

func TestEngine_NoHeaderSkipsVerifier(t *testing.T) {
	v := &stubVerifier{}
	e, _ := NewEngine(EngineConfig{Verifier: v})
	e.Evaluate(context.Background(), "Token abc")
	if v.calls != 0 {
		t.Errorf("verifier calls = %d, want 0", v.calls)
	}
}

func TestDecision_Err(t *testing.T) {
	allow := Decision{Allow: true, Reason: ReasonAllowed}
	if err := allow.Err(); err != nil {
		t.Errorf("allow.Err() = %v, want nil", err)
	}

	cause := errors.New("signature mismatch")
	e, _ := NewEngine(EngineConfig{Verifier: &stubVerifier{err: cause}})
	d := e.Evaluate(context.Background(), "Bearer x")
	err := d.Err()
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Err() = %v, want ErrUnauthenticated", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Err() = %v, want wrapped verifier cause", err)
	}
	var ue *UnauthenticatedError
	if !errors.As(err, &ue) || ue.Reason != ReasonInvalidToken {
		t.Errorf("Err() = %#v, want UnauthenticatedError{Reason: invalid token}", err)
	}
}

func TestEngine_RecordsDecisions(t *testing.T) {
	m := &recordingMetrics{}
	e, _ := NewEngine(EngineConfig{
		Verifier: &stubVerifier{claims: roleClaims("hapi-fhir", "fhir-api")},
		Metrics:  m,
	})
	e.Evaluate(context.Background(), "")
	e.Evaluate(context.Background(), "Bearer x")

	if len(m.decisions) != 2 {
		t.Fatalf("recorded %d decisions, want 2", len(m.decisions))
	}
	if m.decisions[0].Allow || m.decisions[0].Reason != ReasonMissingHeader {
		t.Errorf("first = %+v", m.decisions[0])
	}
	if !m.decisions[1].Allow {
		t.Errorf("second = %+v", m.decisions[1])
	}
}

func TestEngine_EvaluateIsIdempotent(t *testing.T) {
	e := newTestEngine(t, "fhir-api")
	roles := []string{"fhir-api", "fhir-read", "fhir-admin", "uma_authorization"}
	clients := []string{"hapi-fhir", "account", "realm-management"}

	rapid.Check(t, func(rt *rapid.T) {
		client := rapid.SampledFrom(clients).Draw(rt, "client")
		granted := rapid.SliceOf(rapid.SampledFrom(roles)).Draw(rt, "roles")
		scheme := rapid.SampledFrom([]string{"Bearer ", "bearer ", "Basic ", ""}).Draw(rt, "scheme")

		list := make([]any, len(granted))
		for i, r := range granted {
			list[i] = r
		}
		header := scheme + signHS256(t, roleClaims(client, list...))

		first := e.Evaluate(context.Background(), header)
		for i := 0; i < 3; i++ {
			again := e.Evaluate(context.Background(), header)
			if again.Allow != first.Allow || again.Reason != first.Reason {
				rt.Fatalf("evaluation %d = {%v %q}, first = {%v %q}", i, again.Allow, again.Reason, first.Allow, first.Reason)
			}
		}

		wantAllow := scheme == "Bearer " && client == "hapi-fhir"
		if wantAllow {
			found := false
			for _, r := range granted {
				found = found || r == "fhir-api"
			}
			wantAllow = found
		}
		if first.Allow != wantAllow {
			rt.Fatalf("Evaluate() allow = %v, want %v (reason %q)", first.Allow, wantAllow, first.Reason)
		}
	})
}

func TestEngine_ConcurrentEvaluate(t *testing.T) {
	e := newTestEngine(t, "fhir-api")
	allow := "Bearer " + signHS256(t, roleClaims("hapi-fhir", "fhir-api"))
	deny := "Bearer " + signHS256(t, roleClaims("hapi-fhir", "fhir-read"))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, want := allow, true
			if i%2 == 1 {
				h, want = deny, false
			}
			if d := e.Evaluate(context.Background(), h); d.Allow != want {
				t.Errorf("goroutine %d: Allow = %v, want %v", i, d.Allow, want)
			}
		}(i)
	}
	wg.Wait()
}
