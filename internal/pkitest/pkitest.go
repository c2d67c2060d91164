// Package pkitest issues throwaway certificates and encodes them as PKCS12,
// JKS and PEM stores for tests.
package pkitest

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	keystore "github.com/pavlo-v-chernykh/keystore-go/v4"
	"software.sslmate.com/src/go-pkcs12"
)

// Identity is a key with its certificate and issuer chain.
type Identity struct {
	Key    *rsa.PrivateKey
	Cert   *x509.Certificate
	Issuer *Identity
}

// Chain returns the certificate followed by its issuers.
func (id *Identity) Chain() []*x509.Certificate {
	var out []*x509.Certificate
	for cur := id; cur != nil; cur = cur.Issuer {
		out = append(out, cur.Cert)
	}
	return out
}

// NewCA creates a self-signed certificate authority.
func NewCA(t testing.TB, cn string) *Identity {
	t.Helper()
	return issue(t, cn, nil, true, time.Now().Add(24*time.Hour))
}

// Issue creates a leaf for localhost and 127.0.0.1 usable for both server
// and client authentication.
func (id *Identity) Issue(t testing.TB, cn string) *Identity {
	t.Helper()
	return issue(t, cn, id, false, time.Now().Add(24*time.Hour))
}

// IssueExpiring creates a leaf that expires at notAfter.
func (id *Identity) IssueExpiring(t testing.TB, cn string, notAfter time.Time) *Identity {
	t.Helper()
	return issue(t, cn, id, false, notAfter)
}

// SelfSigned creates a self-signed leaf for localhost.
func SelfSigned(t testing.TB, cn string) *Identity {
	t.Helper()
	return issue(t, cn, nil, false, time.Now().Add(24*time.Hour))
}

func issue(t testing.TB, cn string, issuer *Identity, isCA bool, notAfter time.Time) *Identity {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		t.Fatalf("serial: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
	}
	if isCA {
		tmpl.IsCA = true
		tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature
	} else {
		tmpl.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
		tmpl.DNSNames = []string{"localhost"}
		tmpl.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
	}

	parent, signer := tmpl, key
	if issuer != nil {
		parent, signer = issuer.Cert, issuer.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, signer)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return &Identity{Key: key, Cert: cert, Issuer: issuer}
}

// PKCS12 encodes the identity and its issuers as a key store.
func (id *Identity) PKCS12(t testing.TB, passphrase string) []byte {
	t.Helper()
	chain := id.Chain()
	data, err := pkcs12.Modern.Encode(id.Key, chain[0], chain[1:], passphrase)
	if err != nil {
		t.Fatalf("encode pkcs12: %v", err)
	}
	return data
}

// PKCS12TrustStore encodes certs as a trust-only store.
func PKCS12TrustStore(t testing.TB, passphrase string, certs ...*x509.Certificate) []byte {
	t.Helper()
	data, err := pkcs12.Modern.EncodeTrustStore(certs, passphrase)
	if err != nil {
		t.Fatalf("encode pkcs12 trust store: %v", err)
	}
	return data
}

// JKS encodes the identity as a private key entry.
func (id *Identity) JKS(t testing.TB, passphrase string) []byte {
	t.Helper()

	pkcs8, err := x509.MarshalPKCS8PrivateKey(id.Key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	var chain []keystore.Certificate
	for _, c := range id.Chain() {
		chain = append(chain, keystore.Certificate{Type: "X509", Content: c.Raw})
	}

	ks := keystore.New()
	entry := keystore.PrivateKeyEntry{
		CreationTime:     time.Now(),
		PrivateKey:       pkcs8,
		CertificateChain: chain,
	}
	if err := ks.SetPrivateKeyEntry("server", entry, []byte(passphrase)); err != nil {
		t.Fatalf("set jks entry: %v", err)
	}
	return storeJKS(t, ks, passphrase)
}

// JKSTrustStore encodes certs as trusted certificate entries.
func JKSTrustStore(t testing.TB, passphrase string, certs ...*x509.Certificate) []byte {
	t.Helper()

	ks := keystore.New()
	for i, c := range certs {
		entry := keystore.TrustedCertificateEntry{
			CreationTime: time.Now(),
			Certificate:  keystore.Certificate{Type: "X509", Content: c.Raw},
		}
		alias := "ca" + string(rune('a'+i))
		if err := ks.SetTrustedCertificateEntry(alias, entry); err != nil {
			t.Fatalf("set jks trusted entry: %v", err)
		}
	}
	return storeJKS(t, ks, passphrase)
}

func storeJKS(t testing.TB, ks keystore.KeyStore, passphrase string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(passphrase)); err != nil {
		t.Fatalf("store jks: %v", err)
	}
	return buf.Bytes()
}

// PEM encodes the identity's key and chain.
func (id *Identity) PEM(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, c := range id.Chain() {
		_ = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})
	}
	buf.Write(id.KeyPEM())
	return buf.Bytes()
}

// KeyPEM encodes the private key alone.
func (id *Identity) KeyPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(id.Key)})
}

// CertsPEM encodes certificates only.
func CertsPEM(certs ...*x509.Certificate) []byte {
	var buf bytes.Buffer
	for _, c := range certs {
		_ = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})
	}
	return buf.Bytes()
}
