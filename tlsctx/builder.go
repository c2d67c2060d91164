package tlsctx

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/jonwraymond/fhirgate/observe"
	"github.com/jonwraymond/fhirgate/truststore"
)

// Options configures Build.
type Options struct {
	// Key holds the private key and certificate chain. Required.
	Key *truststore.CredentialStore

	// Trust holds peer trust anchors. Optional.
	Trust *truststore.CredentialStore

	// ClientAuth is the inbound client certificate policy. Empty means none.
	ClientAuth ClientAuthPolicy

	// TrustPolicy selects the anchor source. Empty means TrustStore when
	// Trust is set, TrustSelf otherwise.
	TrustPolicy TrustPolicy

	// MinVersion is the protocol floor. Default: DefaultMinVersion.
	MinVersion string

	// CipherSuites lists IANA suite names. Default: DefaultCipherSuites.
	CipherSuites []string

	// Logger receives build events. Default: no-op.
	Logger observe.Logger
}

// Build constructs a transport context from loaded credential stores.
//
// The credential stores are not retained. Failures match
// ErrAlgorithmUnavailable or ErrInitializationFailed; a partially built
// context is never returned.
func Build(ctx context.Context, opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	logger = observe.WithComponent(logger, "tlsctx")

	clientAuth := opts.ClientAuth
	if clientAuth == "" {
		clientAuth = ClientAuthNone
	}
	if _, err := ParseClientAuthPolicy(string(clientAuth)); err != nil {
		return nil, initFailed("client_auth", err)
	}

	trustPolicy := opts.TrustPolicy
	if trustPolicy == "" {
		trustPolicy = TrustSelf
		if opts.Trust != nil {
			trustPolicy = TrustStore
		}
	}
	if _, err := ParseTrustPolicy(string(trustPolicy)); err != nil {
		return nil, initFailed("trust_policy", err)
	}

	minVersion, err := ParseVersion(opts.MinVersion)
	if err != nil {
		return nil, unavailable("min_version", err)
	}
	suites, err := ParseCipherSuites(opts.CipherSuites)
	if err != nil {
		return nil, unavailable("cipher_suites", err)
	}

	cert, leaf, err := keyPair(opts.Key)
	if err != nil {
		return nil, err
	}

	server := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		CipherSuites: suites,
		ClientAuth:   tls.NoClientCert,
	}
	client := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		CipherSuites: suites,
	}

	anchors := 0
	switch {
	case trustPolicy == TrustAll:
		server.ClientAuth = clientAuth.unverified()
		client.InsecureSkipVerify = true
		logger.Warn(ctx, "transport context trusts every peer certificate",
			observe.F("trust_policy", string(trustPolicy)))

	case clientAuth == ClientAuthNone:
		// No trust anchors attached; outbound verification uses system roots.

	default:
		pool, n, err := trustPool(trustPolicy, opts.Key, opts.Trust)
		if err != nil {
			return nil, err
		}
		anchors = n
		server.ClientAuth = clientAuth.TLS()
		server.ClientCAs = pool
		client.RootCAs = pool
	}

	tc := &Context{
		server:      server,
		client:      client,
		leaf:        leaf,
		clientAuth:  clientAuth,
		trustPolicy: trustPolicy,
	}

	logger.Info(ctx, "transport context built",
		observe.F("client_auth", string(clientAuth)),
		observe.F("trust_policy", string(trustPolicy)),
		observe.F("min_version", VersionName(minVersion)),
		observe.F("cipher_suites", len(suites)),
		observe.F("anchors", anchors),
		observe.F("subject", leaf.Subject.String()),
		observe.F("not_after", leaf.NotAfter),
	)
	return tc, nil
}

func keyPair(store *truststore.CredentialStore) (tls.Certificate, *x509.Certificate, error) {
	if store == nil {
		return tls.Certificate{}, nil, initFailed("key", errors.New("no key material"))
	}
	if !store.HasPrivateKey() {
		return tls.Certificate{}, nil, initFailed("key", fmt.Errorf("%s holds no private key", store.Location()))
	}

	key := store.PrivateKey()
	var pub crypto.PublicKey
	switch k := key.(type) {
	case *rsa.PrivateKey:
		pub = k.Public()
	case *ecdsa.PrivateKey:
		pub = k.Public()
	case ed25519.PrivateKey:
		pub = k.Public()
	default:
		return tls.Certificate{}, nil, unavailable("key", fmt.Errorf("unsupported key algorithm %T", key))
	}

	chain := store.Chain()
	if len(chain) == 0 {
		return tls.Certificate{}, nil, initFailed("key", fmt.Errorf("%s holds no certificate for its key", store.Location()))
	}
	leaf := chain[0]

	type equaler interface{ Equal(crypto.PublicKey) bool }
	if eq, ok := pub.(equaler); !ok || !eq.Equal(leaf.PublicKey) {
		return tls.Certificate{}, nil, initFailed("key", errors.New("private key does not match certificate"))
	}

	raw := make([][]byte, 0, len(chain))
	for _, c := range chain {
		raw = append(raw, c.Raw)
	}
	return tls.Certificate{Certificate: raw, PrivateKey: key, Leaf: leaf}, leaf, nil
}

func trustPool(policy TrustPolicy, key, trust *truststore.CredentialStore) (*x509.CertPool, int, error) {
	var certs []*x509.Certificate
	switch policy {
	case TrustSelf:
		certs = key.Certificates()
	case TrustStore:
		if trust == nil {
			return nil, 0, initFailed("trust", errors.New("trust policy store requires trust material"))
		}
		certs = trust.Certificates()
	}
	if len(certs) == 0 {
		return nil, 0, initFailed("trust", errors.New("trust pool is empty"))
	}

	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool, len(certs), nil
}
