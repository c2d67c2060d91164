package truststore

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"strings"
)

// Type is a credential store encoding.
type Type string

// Supported encodings.
const (
	TypePKCS12 Type = "PKCS12"
	TypeJKS    Type = "JKS"
	TypePEM    Type = "PEM"
)

// ParseType parses a type name case-insensitively. P12 and PFX are accepted
// as PKCS12 aliases. An empty name is PKCS12.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PKCS12", "P12", "PFX":
		return TypePKCS12, nil
	case "JKS":
		return TypeJKS, nil
	case "PEM":
		return TypePEM, nil
	default:
		return "", fmt.Errorf("unknown store type %q", s)
	}
}

// Spec identifies one credential store to load.
type Spec struct {
	// Location is a filesystem path, "file:<path>" or "classpath:<name>".
	Location string

	// Type is the encoding name. See ParseType.
	Type string

	// Passphrase decrypts the store. Ignored for PEM.
	Passphrase string
}

// CredentialStore is a parsed key store or trust store.
//
// A CredentialStore is immutable after Load; accessors return copies.
type CredentialStore struct {
	location   string
	typ        Type
	passphrase string
	key        crypto.PrivateKey
	chain      []*x509.Certificate
	anchors    []*x509.Certificate
}

// Location returns the locator the store was loaded from.
func (s *CredentialStore) Location() string { return s.location }

// Type returns the store encoding.
func (s *CredentialStore) Type() Type { return s.typ }

// Passphrase returns the decryption passphrase.
func (s *CredentialStore) Passphrase() string { return s.passphrase }

// HasPrivateKey reports whether the store carries a private key entry.
func (s *CredentialStore) HasPrivateKey() bool { return s.key != nil }

// PrivateKey returns the private key, or nil for a trust-only store.
func (s *CredentialStore) PrivateKey() crypto.PrivateKey { return s.key }

// Chain returns the certificate chain of the private key entry, leaf first.
func (s *CredentialStore) Chain() []*x509.Certificate {
	return append([]*x509.Certificate(nil), s.chain...)
}

// TrustAnchors returns certificates stored as trusted entries.
func (s *CredentialStore) TrustAnchors() []*x509.Certificate {
	return append([]*x509.Certificate(nil), s.anchors...)
}

// Leaf returns the first certificate of the chain, or nil.
func (s *CredentialStore) Leaf() *x509.Certificate {
	if len(s.chain) == 0 {
		return nil
	}
	return s.chain[0]
}

// Certificates returns every certificate in the store: the chain followed by
// the trust anchors.
func (s *CredentialStore) Certificates() []*x509.Certificate {
	out := make([]*x509.Certificate, 0, len(s.chain)+len(s.anchors))
	out = append(out, s.chain...)
	out = append(out, s.anchors...)
	return out
}

// CertPool builds a pool from every certificate in the store.
func (s *CredentialStore) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	for _, c := range s.Certificates() {
		pool.AddCert(c)
	}
	return pool
}
