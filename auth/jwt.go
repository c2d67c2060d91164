package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT verifier.
type JWTConfig struct {
	// Issuer is the expected token issuer (iss claim). Empty skips the check.
	Issuer string

	// Audience is the expected token audience (aud claim). Empty skips the check.
	Audience string

	// ValidMethods restricts accepted signing algorithms, e.g. "RS256".
	// Empty accepts any algorithm the key type supports.
	ValidMethods []string

	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration
}

// KeyProvider retrieves signing keys for JWT validation.
type KeyProvider interface {
	// GetKey returns the key for the given key ID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider provides a single fixed key: an HMAC secret as []byte or
// a public key.
type StaticKeyProvider struct {
	key any
}

// NewStaticKeyProvider creates a static key provider.
func NewStaticKeyProvider(key any) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the static key.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	if p.key == nil {
		return nil, ErrKeyNotFound
	}
	return p.key, nil
}

// JWTVerifier validates signed JWTs with golang-jwt.
type JWTVerifier struct {
	keys   KeyProvider
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier.
func NewJWTVerifier(config JWTConfig, keys KeyProvider) *JWTVerifier {
	var opts []jwt.ParserOption
	if len(config.ValidMethods) > 0 {
		opts = append(opts, jwt.WithValidMethods(config.ValidMethods))
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}

	return &JWTVerifier{
		keys:   keys,
		parser: jwt.NewParser(opts...),
	}
}

// Verify parses raw, checks its signature and registered claims, and returns
// the claims.
func (v *JWTVerifier) Verify(ctx context.Context, raw string) (*DecodedToken, error) {
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return v.keys.GetKey(ctx, kid)
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	return NewDecodedToken(claims), nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, ErrKeyNotFound):
		return fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

var (
	_ TokenVerifier = (*JWTVerifier)(nil)
	_ KeyProvider   = (*StaticKeyProvider)(nil)
)
