package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jonwraymond/fhirgate/observe"
)

// TokenPath is appended to the authorization server base URL.
const TokenPath = "/protocol/openid-connect/token"

// TokenResponse is a successful client_credentials token response.
type TokenResponse struct {
	AccessToken      string
	ExpiresIn        int64
	RefreshExpiresIn int64
	TokenType        string
	NotBeforePolicy  int64
	Scope            string
}

// TokenClientConfig configures a TokenClient.
type TokenClientConfig struct {
	// HTTPClient performs the token request. Nil means http.DefaultClient.
	HTTPClient *http.Client

	Logger  observe.Logger
	Tracer  observe.Tracer
	Metrics observe.Metrics
}

// TokenClient acquires access tokens with the OAuth2 client_credentials grant.
//
// Every Acquire performs exactly one network round trip. Tokens are neither
// cached nor refreshed, and concurrent calls are not coalesced.
type TokenClient struct {
	httpClient *http.Client
	logger     observe.Logger
	tracer     observe.Tracer
	metrics    observe.Metrics
}

// NewTokenClient creates a TokenClient.
func NewTokenClient(cfg TokenClientConfig) *TokenClient {
	c := &TokenClient{
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
		metrics:    cfg.Metrics,
	}
	if c.logger == nil {
		c.logger = observe.NopLogger()
	}
	c.logger = observe.WithComponent(c.logger, "token_client")
	if c.tracer == nil {
		c.tracer = observe.NopTracer()
	}
	if c.metrics == nil {
		c.metrics = observe.NopMetrics()
	}
	return c
}

// TokenURL returns the token endpoint for an authorization server base URL.
func TokenURL(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + TokenPath
}

// Acquire posts grant_type=client_credentials with the client id and secret
// as form parameters to TokenURL(endpoint). Any failure is a
// *TokenAcquisitionError matching ErrTokenAcquisitionFailed.
func (c *TokenClient) Acquire(ctx context.Context, endpoint, clientID, clientSecret string) (*TokenResponse, error) {
	tokenURL := TokenURL(endpoint)

	ctx, span := c.tracer.Start(ctx, "token.acquire",
		attribute.String("oauth2.token_url", tokenURL),
		attribute.String("oauth2.client_id", clientID),
	)
	start := time.Now()

	resp, err := c.acquire(ctx, tokenURL, clientID, clientSecret)

	c.tracer.End(span, err)
	c.metrics.RecordTokenAcquisition(ctx, time.Since(start), err)

	if err != nil {
		c.logger.Error(ctx, "failed to obtain access token",
			observe.F("token_url", tokenURL),
			observe.F("client_id", clientID),
			observe.Err(err),
		)
		return nil, err
	}

	c.logger.Info(ctx, "obtained access token",
		observe.F("token_url", tokenURL),
		observe.F("client_id", clientID),
		observe.F("token_type", resp.TokenType),
		observe.F("expires_in", resp.ExpiresIn),
	)
	return resp, nil
}

func (c *TokenClient) acquire(ctx context.Context, tokenURL, clientID, clientSecret string) (*TokenResponse, error) {
	fail := func(cause error) error {
		return &TokenAcquisitionError{Endpoint: tokenURL, ClientID: clientID, Cause: cause}
	}

	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	tok, err := cfg.Token(ctx)
	if err != nil {
		return nil, fail(err)
	}
	if tok.AccessToken == "" {
		return nil, fail(errors.New("response has no access_token"))
	}

	return &TokenResponse{
		AccessToken:      tok.AccessToken,
		ExpiresIn:        extraInt(tok, "expires_in"),
		RefreshExpiresIn: extraInt(tok, "refresh_expires_in"),
		TokenType:        tok.TokenType,
		NotBeforePolicy:  extraInt(tok, "not-before-policy"),
		Scope:            extraString(tok, "scope"),
	}, nil
}

func extraInt(tok *oauth2.Token, key string) int64 {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func extraString(tok *oauth2.Token, key string) string {
	if s, ok := tok.Extra(key).(string); ok {
		return s
	}
	return ""
}
