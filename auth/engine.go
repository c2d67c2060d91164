package auth

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jonwraymond/fhirgate/observe"
)

// Defaults for EngineConfig.
const (
	DefaultRequiredRole = "fhir-api"
	DefaultClientID     = "hapi-fhir"
)

// Decision reasons.
const (
	ReasonMissingHeader = "missing or invalid Authorization header"
	ReasonInvalidToken  = "invalid token"
	ReasonInsufficient  = "insufficient permissions"
	ReasonAllowed       = "allowed"
)

// BearerPrefix is the case-sensitive Authorization scheme prefix.
const BearerPrefix = "Bearer "

// Decision is the outcome of evaluating one request.
type Decision struct {
	Allow  bool
	Reason string

	cause error
}

// Err returns nil for an allow decision, otherwise an *UnauthenticatedError.
func (d Decision) Err() error {
	if d.Allow {
		return nil
	}
	return &UnauthenticatedError{Reason: d.Reason, Cause: d.cause}
}

func deny(reason string, cause error) Decision {
	return Decision{Reason: reason, cause: cause}
}

// ErrNilVerifier is returned by NewEngine without a TokenVerifier.
var ErrNilVerifier = errors.New("auth: token verifier is required")

// EngineConfig configures the inbound authorization engine.
type EngineConfig struct {
	// RequiredRole must appear in the token's client roles.
	// Default: "fhir-api"
	RequiredRole string

	// ClientID selects resource_access.<ClientID>.roles.
	// Default: "hapi-fhir"
	ClientID string

	// Verifier checks token signatures and registered claims.
	Verifier TokenVerifier

	Logger  observe.Logger
	Tracer  observe.Tracer
	Metrics observe.Metrics
}

// Engine renders allow/deny decisions from an Authorization header.
//
// It holds no per-request state; one Engine serves any number of concurrent
// requests.
type Engine struct {
	role     string
	clientID string
	verifier TokenVerifier
	logger   observe.Logger
	tracer   observe.Tracer
	metrics  observe.Metrics
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Verifier == nil {
		return nil, ErrNilVerifier
	}
	e := &Engine{
		role:     cfg.RequiredRole,
		clientID: cfg.ClientID,
		verifier: cfg.Verifier,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
		metrics:  cfg.Metrics,
	}
	if e.role == "" {
		e.role = DefaultRequiredRole
	}
	if e.clientID == "" {
		e.clientID = DefaultClientID
	}
	if e.logger == nil {
		e.logger = observe.NopLogger()
	}
	e.logger = observe.WithComponent(e.logger, "authz")
	if e.tracer == nil {
		e.tracer = observe.NopTracer()
	}
	if e.metrics == nil {
		e.metrics = observe.NopMetrics()
	}
	return e, nil
}

// RequiredRole returns the configured role.
func (e *Engine) RequiredRole() string { return e.role }

// ClientID returns the configured claims client id.
func (e *Engine) ClientID() string { return e.clientID }

// Evaluate decides a request from its Authorization header value.
func (e *Engine) Evaluate(ctx context.Context, header string) Decision {
	d, _ := e.EvaluateToken(ctx, header)
	return d
}

// EvaluateToken is Evaluate that also returns the verified token on allow.
func (e *Engine) EvaluateToken(ctx context.Context, header string) (Decision, *DecodedToken) {
	ctx, span := e.tracer.Start(ctx, "auth.evaluate")
	d, tok := e.evaluate(ctx, header)
	span.SetAttributes(
		attribute.Bool("authz.allow", d.Allow),
		attribute.String("authz.reason", d.Reason),
	)
	e.tracer.End(span, nil)
	e.metrics.RecordDecision(ctx, d.Allow, d.Reason)
	return d, tok
}

func (e *Engine) evaluate(ctx context.Context, header string) (Decision, *DecodedToken) {
	raw, ok := BearerToken(header)
	if !ok {
		return deny(ReasonMissingHeader, nil), nil
	}

	tok, err := e.verifier.Verify(ctx, raw)
	if err != nil {
		e.logger.Debug(ctx, "token rejected", observe.Err(err))
		return deny(ReasonInvalidToken, err), nil
	}

	if !tok.HasRole(e.clientID, e.role) {
		e.logger.Debug(ctx, "required role missing",
			observe.F("subject", tok.Subject()),
			observe.F("client_id", e.clientID),
			observe.F("role", e.role),
		)
		return deny(ReasonInsufficient, nil), nil
	}

	return Decision{Allow: true, Reason: ReasonAllowed}, tok
}

// BearerToken strips the "Bearer " prefix from an Authorization header value.
// It reports false when the prefix is absent. An empty remainder is returned
// as-is and left for the verifier to reject.
func BearerToken(header string) (string, bool) {
	return strings.CutPrefix(header, BearerPrefix)
}
