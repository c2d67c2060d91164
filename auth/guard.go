package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/fhirgate/observe"
)

// RequestIDHeader carries the request correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

// FHIRContentType is the media type of OperationOutcome bodies.
const FHIRContentType = "application/fhir+json"

// RoutePolicy reports whether a path must be authorized.
type RoutePolicy interface {
	RequiresAuth(path string) bool
}

// OperationOutcome is the FHIR error resource written on denial.
type OperationOutcome struct {
	ResourceType string  `json:"resourceType"`
	Issue        []Issue `json:"issue"`
}

// Issue is one OperationOutcome entry.
type Issue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// NewOperationOutcome builds a single-issue error outcome.
func NewOperationOutcome(code, diagnostics string) OperationOutcome {
	return OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue:        []Issue{{Severity: "error", Code: code, Diagnostics: diagnostics}},
	}
}

// Guard returns middleware that gates next behind routes and engine.
//
// Exempt paths pass straight through without consulting the engine. Paths
// that require authorization are evaluated; a denial is answered with 401,
// a WWW-Authenticate challenge and an OperationOutcome body, and next is not
// called. An allowed request carries its Decision and token in the context.
func Guard(routes RoutePolicy, engine *Engine, logger observe.Logger, metrics observe.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	logger = observe.WithComponent(logger, "guard")
	if metrics == nil {
		metrics = observe.NopMetrics()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			ctx := WithRequestID(r.Context(), id)

			if !routes.RequiresAuth(r.URL.Path) {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			start := time.Now()
			d, tok := engine.EvaluateToken(ctx, r.Header.Get("Authorization"))
			metrics.RecordOperation(ctx, "authorize", time.Since(start), d.Err())

			if !d.Allow {
				logger.Warn(ctx, "request denied",
					observe.F("request_id", id),
					observe.F("method", r.Method),
					observe.F("path", r.URL.Path),
					observe.F("reason", d.Reason),
				)
				writeDenied(w, d)
				return
			}

			logger.Debug(ctx, "request authorized",
				observe.F("request_id", id),
				observe.F("path", r.URL.Path),
				observe.F("subject", tok.Subject()),
			)
			ctx = WithDecision(ctx, d)
			ctx = WithToken(ctx, tok)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeDenied(w http.ResponseWriter, d Decision) {
	code := "login"
	if d.Reason == ReasonInsufficient {
		code = "forbidden"
	}
	challenge := "Bearer"
	switch d.Reason {
	case ReasonInvalidToken:
		challenge += ` error="invalid_token"`
	case ReasonInsufficient:
		challenge += ` error="insufficient_scope"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", FHIRContentType)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(NewOperationOutcome(code, d.Reason))
}
