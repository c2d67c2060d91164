package fhirclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonwraymond/fhirgate/auth"
	"github.com/jonwraymond/fhirgate/observe"
	"github.com/jonwraymond/fhirgate/tlsctx"
)

// RequestMetadata describes the inbound request a client is created for.
type RequestMetadata struct {
	// RequestID is forwarded as X-Request-ID.
	RequestID string
}

// MetadataFromRequest extracts RequestMetadata from an inbound request.
func MetadataFromRequest(r *http.Request) RequestMetadata {
	id := auth.RequestIDFromContext(r.Context())
	if id == "" {
		id = r.Header.Get(auth.RequestIDHeader)
	}
	return RequestMetadata{RequestID: id}
}

// Factory creates authenticated FHIR clients on demand.
type Factory interface {
	NewClient(ctx context.Context, md RequestMetadata, baseURL string) (*Client, error)
}

// Credentials are the OAuth2 client credentials used to obtain tokens.
type Credentials struct {
	// AuthServerURL is the realm base; the token path is appended.
	AuthServerURL string
	ClientID      string
	ClientSecret  string
}

// TokenFactoryConfig configures a TokenFactory.
type TokenFactoryConfig struct {
	// Transport supplies the outbound TLS configuration. Nil means
	// http.DefaultTransport.
	Transport *tlsctx.Context

	// Tokens acquires access tokens. Required.
	Tokens *auth.TokenClient

	Credentials Credentials
	Logger      observe.Logger
}

// ErrNilTokenClient is returned by NewTokenFactory without a token client.
var ErrNilTokenClient = errors.New("fhirclient: token client is required")

// TokenFactory builds clients that carry a freshly acquired bearer token over
// the mutual TLS transport.
//
// Every NewClient acquires a new token; nothing is cached. All clients share
// one connection pool.
type TokenFactory struct {
	base   http.RoundTripper
	tokens *auth.TokenClient
	creds  Credentials
	logger observe.Logger
}

// NewTokenFactory creates a TokenFactory.
func NewTokenFactory(cfg TokenFactoryConfig) (*TokenFactory, error) {
	if cfg.Tokens == nil {
		return nil, ErrNilTokenClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	var base http.RoundTripper = http.DefaultTransport
	if cfg.Transport != nil {
		base = cfg.Transport.Transport()
	}
	return &TokenFactory{
		base:   base,
		tokens: cfg.Tokens,
		creds:  cfg.Credentials,
		logger: logger,
	}, nil
}

// NewClient acquires a token and returns a client for baseURL. A token
// failure is returned as is and matches auth.ErrTokenAcquisitionFailed.
func (f *TokenFactory) NewClient(ctx context.Context, md RequestMetadata, baseURL string) (*Client, error) {
	f.logger.Info(ctx, "creating FHIR client",
		observe.F("base_url", baseURL), observe.F("request_id", md.RequestID))

	tok, err := f.tokens.Acquire(ctx, f.creds.AuthServerURL, f.creds.ClientID, f.creds.ClientSecret)
	if err != nil {
		return nil, err
	}

	c := New(baseURL, &http.Client{
		Transport: auth.NewBearerTransport(tok.AccessToken, f.base),
		Timeout:   DefaultTimeout,
	}, f.logger)
	if md.RequestID != "" {
		c.header.Set(auth.RequestIDHeader, md.RequestID)
	}
	return c, nil
}

var _ Factory = (*TokenFactory)(nil)
