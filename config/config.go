package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/fhirgate/auth"
	"github.com/jonwraymond/fhirgate/observe"
	"github.com/jonwraymond/fhirgate/secret"
	"github.com/jonwraymond/fhirgate/tlsctx"
	"github.com/jonwraymond/fhirgate/truststore"
)

// Config is the gateway configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	TLS           TLSConfig           `yaml:"tls"`
	OAuth2        OAuth2Config        `yaml:"oauth2"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	FHIR          FHIRConfig          `yaml:"fhir"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the listener and the proxied upstream.
type ServerConfig struct {
	Address       string `yaml:"address"`
	PublicBaseURL string `yaml:"public_base_url"`
	UpstreamURL   string `yaml:"upstream_url"`

	// ResourcesDir backs classpath: locators.
	ResourcesDir string `yaml:"resources_dir"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig names one key or trust store.
type StoreConfig struct {
	Location string `yaml:"location"`
	Password string `yaml:"password"`
	Type     string `yaml:"type"`
}

// Spec converts s for the loader.
func (s StoreConfig) Spec() truststore.Spec {
	return truststore.Spec{Location: s.Location, Type: s.Type, Passphrase: s.Password}
}

// TLSConfig configures the transport context.
type TLSConfig struct {
	KeyStore     StoreConfig  `yaml:"key_store"`
	TrustStore   *StoreConfig `yaml:"trust_store"`
	ClientAuth   string       `yaml:"client_auth"`
	TrustPolicy  string       `yaml:"trust_policy"`
	MinVersion   string       `yaml:"min_version"`
	CipherSuites []string     `yaml:"cipher_suites"`
}

// OAuth2Config holds the client credentials for outbound tokens.
type OAuth2Config struct {
	AuthServerURL string `yaml:"auth_server_url"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
}

// AuthorizationConfig configures inbound token checks.
type AuthorizationConfig struct {
	RequiredRole string   `yaml:"required_role"`
	ClientID     string   `yaml:"client_id"`
	Issuer       string   `yaml:"issuer"`
	Audience     string   `yaml:"audience"`
	JWKSURL      string   `yaml:"jwks_url"`
	HMACSecret   string   `yaml:"hmac_secret"`
	ValidMethods []string `yaml:"valid_methods"`
}

// FHIRConfig configures the outbound FHIR client.
type FHIRConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ObservabilityConfig configures logging, tracing and metrics.
type ObservabilityConfig struct {
	ServiceName     string  `yaml:"service_name"`
	LogLevel        string  `yaml:"log_level"`
	TracingExporter string  `yaml:"tracing_exporter"`
	SamplePct       float64 `yaml:"sample_pct"`
	MetricsExporter string  `yaml:"metrics_exporter"`
}

// Default returns the configuration used for keys a file leaves unset.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8443",
			ShutdownTimeout: 10 * time.Second,
		},
		TLS: TLSConfig{
			ClientAuth: string(tlsctx.ClientAuthWant),
			MinVersion: tlsctx.DefaultMinVersion,
		},
		Authorization: AuthorizationConfig{
			RequiredRole: auth.DefaultRequiredRole,
			ClientID:     auth.DefaultClientID,
		},
		FHIR: FHIRConfig{
			BaseURL: "https://localhost:8443/fhir",
		},
		Observability: ObservabilityConfig{
			ServiceName:     "fhirgate",
			LogLevel:        "info",
			TracingExporter: "none",
			SamplePct:       1.0,
			MetricsExporter: "prometheus",
		},
	}
}

// Load reads path, resolves secret references with resolver and validates
// the result. ${VAR} references anywhere in the file are expanded strictly
// before parsing. Unknown keys are rejected.
func Load(ctx context.Context, path string, resolver *secret.Resolver) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(ctx, bytes.NewReader(data), resolver)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for an already opened document.
func Parse(ctx context.Context, r io.Reader, resolver *secret.Resolver) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	expanded, err := secret.ExpandEnvStrict(string(raw))
	if err != nil {
		return nil, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if resolver == nil {
		resolver = secret.NewResolver(true, secret.EnvProvider{}, secret.FileProvider{})
	}
	if err := cfg.resolveSecrets(ctx, resolver); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolveSecrets(ctx context.Context, r *secret.Resolver) error {
	fields := map[string]*string{
		"tls.key_store.password":    &c.TLS.KeyStore.Password,
		"oauth2.client_secret":      &c.OAuth2.ClientSecret,
		"authorization.hmac_secret": &c.Authorization.HMACSecret,
	}
	if c.TLS.TrustStore != nil {
		fields["tls.trust_store.password"] = &c.TLS.TrustStore.Password
	}
	return r.ResolveAll(ctx, fields)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := c.OAuth2.Validate(); err != nil {
		return fmt.Errorf("oauth2: %w", err)
	}
	if err := c.Authorization.Validate(c.OAuth2); err != nil {
		return fmt.Errorf("authorization: %w", err)
	}
	if err := validURL(c.FHIR.BaseURL, true); err != nil {
		return fmt.Errorf("fhir.base_url: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

// Validate checks the server section.
func (s ServerConfig) Validate() error {
	if s.Address == "" {
		return errors.New("address is required")
	}
	if s.UpstreamURL == "" {
		return errors.New("upstream_url is required")
	}
	if err := validURL(s.UpstreamURL, false); err != nil {
		return fmt.Errorf("upstream_url: %w", err)
	}
	if s.PublicBaseURL != "" {
		if err := validURL(s.PublicBaseURL, false); err != nil {
			return fmt.Errorf("public_base_url: %w", err)
		}
	}
	if s.ShutdownTimeout < 0 {
		return errors.New("shutdown_timeout must not be negative")
	}
	return nil
}

// Validate checks the TLS section.
func (t TLSConfig) Validate() error {
	if t.KeyStore.Location == "" {
		return errors.New("key_store.location is required")
	}
	if _, err := truststore.ParseType(t.KeyStore.Type); err != nil {
		return fmt.Errorf("key_store.type: %w", err)
	}
	if t.TrustStore != nil && t.TrustStore.Location != "" {
		if _, err := truststore.ParseType(t.TrustStore.Type); err != nil {
			return fmt.Errorf("trust_store.type: %w", err)
		}
	}
	if _, err := tlsctx.ParseClientAuthPolicy(t.ClientAuth); err != nil {
		return fmt.Errorf("client_auth: %w", err)
	}
	p, err := tlsctx.ParseTrustPolicy(t.TrustPolicy)
	if err != nil {
		return fmt.Errorf("trust_policy: %w", err)
	}
	if p == tlsctx.TrustStore && !t.HasTrustStore() {
		return errors.New("trust_policy store needs trust_store.location")
	}
	if _, err := tlsctx.ParseVersion(t.MinVersion); err != nil {
		return fmt.Errorf("min_version: %w", err)
	}
	if _, err := tlsctx.ParseCipherSuites(t.CipherSuites); err != nil {
		return fmt.Errorf("cipher_suites: %w", err)
	}
	return nil
}

// HasTrustStore reports whether a trust store is configured.
func (t TLSConfig) HasTrustStore() bool {
	return t.TrustStore != nil && t.TrustStore.Location != ""
}

// Material returns the stores to load.
func (t TLSConfig) Material() tlsctx.Material {
	m := tlsctx.Material{Key: t.KeyStore.Spec()}
	if t.HasTrustStore() {
		s := t.TrustStore.Spec()
		m.Trust = &s
	}
	return m
}

// Locations returns every configured store location.
func (t TLSConfig) Locations() []string {
	locs := []string{t.KeyStore.Location}
	if t.HasTrustStore() {
		locs = append(locs, t.TrustStore.Location)
	}
	return locs
}

// policies parses the policy names. Validate has already rejected bad ones.
func (t TLSConfig) policies() (tlsctx.ClientAuthPolicy, tlsctx.TrustPolicy) {
	ca, _ := tlsctx.ParseClientAuthPolicy(t.ClientAuth)
	tp, _ := tlsctx.ParseTrustPolicy(t.TrustPolicy)
	return ca, tp
}

// Options returns the build options for the transport context. An empty
// trust policy falls back to the builder's default.
func (t TLSConfig) Options(logger observe.Logger) tlsctx.Options {
	ca, tp := t.policies()
	return tlsctx.Options{
		ClientAuth:   ca,
		TrustPolicy:  tp,
		MinVersion:   t.MinVersion,
		CipherSuites: t.CipherSuites,
		Logger:       logger,
	}
}

// ConnectorOptions returns the listener customizer options.
func (t TLSConfig) ConnectorOptions(logger observe.Logger) tlsctx.ConnectorOptions {
	m := t.Material()
	ca, tp := t.policies()
	return tlsctx.ConnectorOptions{
		Key:          m.Key,
		Trust:        m.Trust,
		ClientAuth:   ca,
		TrustPolicy:  tp,
		MinVersion:   t.MinVersion,
		CipherSuites: t.CipherSuites,
		Logger:       logger,
	}
}

// Validate checks the oauth2 section. All fields are optional together but
// a partial set is an error.
func (o OAuth2Config) Validate() error {
	if o.AuthServerURL == "" && o.ClientID == "" && o.ClientSecret == "" {
		return nil
	}
	if o.AuthServerURL == "" || o.ClientID == "" {
		return errors.New("auth_server_url and client_id are required together")
	}
	return validURL(o.AuthServerURL, true)
}

// Configured reports whether outbound tokens can be requested.
func (o OAuth2Config) Configured() bool {
	return o.AuthServerURL != "" && o.ClientID != ""
}

// Validate checks the authorization section. Keys come from jwks_url, from
// hmac_secret, or from the oauth2 server's certs endpoint.
func (a AuthorizationConfig) Validate(o OAuth2Config) error {
	if a.RequiredRole == "" {
		return errors.New("required_role is required")
	}
	if a.ClientID == "" {
		return errors.New("client_id is required")
	}
	if a.JWKSURL != "" && a.HMACSecret != "" {
		return errors.New("jwks_url and hmac_secret are mutually exclusive")
	}
	if a.JWKSURL == "" && a.HMACSecret == "" && o.AuthServerURL == "" {
		return errors.New("one of jwks_url, hmac_secret or oauth2.auth_server_url is required")
	}
	if a.JWKSURL != "" {
		return validURL(a.JWKSURL, true)
	}
	return nil
}

// KeySetURL returns the JWKS endpoint to use, or "" for HMAC.
func (a AuthorizationConfig) KeySetURL(o OAuth2Config) string {
	switch {
	case a.HMACSecret != "":
		return ""
	case a.JWKSURL != "":
		return a.JWKSURL
	default:
		return auth.JWKSURL(o.AuthServerURL)
	}
}

// Validate checks the observability section.
func (o ObservabilityConfig) Validate() error {
	if o.ServiceName == "" {
		return errors.New("service_name is required")
	}
	switch o.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", o.LogLevel)
	}
	switch o.TracingExporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown tracing_exporter %q", o.TracingExporter)
	}
	if o.SamplePct < 0 || o.SamplePct > 1 {
		return fmt.Errorf("sample_pct %v out of range [0,1]", o.SamplePct)
	}
	switch o.MetricsExporter {
	case "", "none", "stdout", "otlp", "prometheus":
	default:
		return fmt.Errorf("unknown metrics_exporter %q", o.MetricsExporter)
	}
	return nil
}

// Observe converts o for observe.NewObserver.
func (o ObservabilityConfig) Observe(version string) observe.Config {
	return observe.Config{
		ServiceName: o.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   o.TracingExporter != "" && o.TracingExporter != "none",
			Exporter:  o.TracingExporter,
			SamplePct: o.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.MetricsExporter != "" && o.MetricsExporter != "none",
			Exporter: o.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   o.LogLevel,
		},
	}
}

func validURL(raw string, requireHTTPS bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if requireHTTPS && !isLoopback(u.Hostname()) {
			return fmt.Errorf("%q must use https", raw)
		}
	default:
		return fmt.Errorf("%q has unsupported scheme %q", raw, u.Scheme)
	}
	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
