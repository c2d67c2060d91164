package auth

import "context"

// TokenVerifier checks a raw bearer token and exposes its claims.
//
// Implementations return an error for bad signatures, expired tokens and
// malformed input. They must be safe for concurrent use.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*DecodedToken, error)
}

// DecodedToken is a read-only view over verified claims.
type DecodedToken struct {
	claims map[string]any
}

// NewDecodedToken copies claims into a DecodedToken.
func NewDecodedToken(claims map[string]any) *DecodedToken {
	c := make(map[string]any, len(claims))
	for k, v := range claims {
		c[k] = v
	}
	return &DecodedToken{claims: c}
}

// Claim returns a top-level claim.
func (t *DecodedToken) Claim(name string) (any, bool) {
	v, ok := t.claims[name]
	return v, ok
}

// Subject returns the sub claim.
func (t *DecodedToken) Subject() string {
	s, _ := t.claims["sub"].(string)
	return s
}

// Roles returns resource_access.<clientID>.roles. A missing level anywhere
// on the path yields nil. Non-string entries are skipped.
func (t *DecodedToken) Roles(clientID string) []string {
	access, ok := t.claims["resource_access"].(map[string]any)
	if !ok {
		return nil
	}
	client, ok := access[clientID].(map[string]any)
	if !ok {
		return nil
	}

	var roles []string
	switch list := client["roles"].(type) {
	case []any:
		for _, r := range list {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	case []string:
		roles = append(roles, list...)
	}
	return roles
}

// HasRole reports whether role appears in Roles(clientID).
func (t *DecodedToken) HasRole(clientID, role string) bool {
	for _, r := range t.Roles(clientID) {
		if r == role {
			return true
		}
	}
	return false
}
