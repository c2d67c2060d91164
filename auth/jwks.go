package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/fhirgate/observe"
)

// CertsPath is appended to the authorization server base URL to reach its
// JSON Web Key Set.
const CertsPath = "/protocol/openid-connect/certs"

// JWKSURL returns the key set URL for an authorization server base URL.
func JWKSURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + CertsPath
}

// JWKSConfig configures the JWKS key provider.
type JWKSConfig struct {
	// URL is the key set endpoint.
	URL string

	// CacheTTL is how long fetched keys are trusted before a refresh.
	// Default: 10 minutes
	CacheTTL time.Duration

	// HTTPClient fetches the key set. Nil means a client with a 30s timeout
	// on http.DefaultTransport.
	HTTPClient *http.Client

	Logger observe.Logger
}

// JWKSKeyProvider resolves signing keys from the authorization server's key
// set. Unknown key IDs trigger a refresh; concurrent refreshes share one
// request. When a refresh fails, previously fetched keys keep working.
type JWKSKeyProvider struct {
	config JWKSConfig
	logger observe.Logger

	mu      sync.RWMutex
	keys    map[string]crypto.PublicKey
	fetched time.Time
	stale   map[string]crypto.PublicKey
	group   singleflight.Group
}

// NewJWKSKeyProvider creates a key provider.
func NewJWKSKeyProvider(config JWKSConfig) *JWKSKeyProvider {
	if config.CacheTTL <= 0 {
		config.CacheTTL = 10 * time.Minute
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}

	return &JWKSKeyProvider{
		config: config,
		logger: observe.WithComponent(logger, "jwks"),
		keys:   map[string]crypto.PublicKey{},
		stale:  map[string]crypto.PublicKey{},
	}
}

// GetKey returns the key for keyID. An empty keyID resolves only when the set
// holds exactly one key.
func (p *JWKSKeyProvider) GetKey(ctx context.Context, keyID string) (any, error) {
	p.mu.RLock()
	fresh := time.Since(p.fetched) < p.config.CacheTTL
	key := lookup(p.keys, keyID)
	p.mu.RUnlock()
	if fresh && key != nil {
		return key, nil
	}

	_, err, _ := p.group.Do("refresh", func() (any, error) {
		return nil, p.refresh(ctx)
	})

	p.mu.RLock()
	defer p.mu.RUnlock()
	if key := lookup(p.keys, keyID); key != nil {
		return key, nil
	}
	if err != nil {
		if key := lookup(p.stale, keyID); key != nil {
			p.logger.Warn(ctx, "using previously fetched signing key",
				observe.F("kid", keyID), observe.Err(err))
			return key, nil
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, keyID)
}

func lookup(keys map[string]crypto.PublicKey, keyID string) crypto.PublicKey {
	if keyID == "" {
		if len(keys) != 1 {
			return nil
		}
		for _, k := range keys {
			return k
		}
	}
	return keys[keyID]
}

func (p *JWKSKeyProvider) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return fmt.Errorf("jwks request: %w", err)
	}

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("jwks fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch: unexpected status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("jwks decode: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			p.logger.Debug(ctx, "skipping key", observe.F("kid", k.Kid), observe.Err(err))
			continue
		}
		keys[k.Kid] = pub
	}

	p.mu.Lock()
	p.keys = keys
	p.fetched = time.Now()
	for kid, k := range keys {
		p.stale[kid] = k
	}
	p.mu.Unlock()

	p.logger.Debug(ctx, "refreshed signing keys", observe.F("count", len(keys)))
	return nil
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

var errUnsupportedKey = errors.New("unsupported key type")

func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		n, err := b64Int(k.N)
		if err != nil {
			return nil, fmt.Errorf("n: %w", err)
		}
		e, err := b64Int(k.E)
		if err != nil {
			return nil, fmt.Errorf("e: %w", err)
		}
		if !e.IsInt64() || e.Int64() < 3 {
			return nil, errors.New("e: out of range")
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil

	case "EC":
		var curve elliptic.Curve
		switch k.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("%w: curve %q", errUnsupportedKey, k.Crv)
		}
		x, err := b64Int(k.X)
		if err != nil {
			return nil, fmt.Errorf("x: %w", err)
		}
		y, err := b64Int(k.Y)
		if err != nil {
			return nil, fmt.Errorf("y: %w", err)
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedKey, k.Kty)
	}
}

func b64Int(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("missing")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

var _ KeyProvider = (*JWKSKeyProvider)(nil)
