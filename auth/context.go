package auth

import "context"

type contextKey int

const (
	decisionKey contextKey = iota
	tokenKey
	requestIDKey
)

// WithDecision attaches an authorization decision to ctx.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}

// DecisionFromContext returns the decision recorded by Guard, if any.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey).(Decision)
	return d, ok
}

// WithToken attaches verified claims to ctx.
func WithToken(ctx context.Context, t *DecodedToken) context.Context {
	return context.WithValue(ctx, tokenKey, t)
}

// TokenFromContext returns the verified token, or nil.
func TokenFromContext(ctx context.Context) *DecodedToken {
	t, _ := ctx.Value(tokenKey).(*DecodedToken)
	return t
}

// WithRequestID attaches a request correlation id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
