package tlsctx

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// ClientAuthPolicy controls whether inbound connections must present a
// client certificate.
type ClientAuthPolicy string

// Client authentication policies.
const (
	ClientAuthNone    ClientAuthPolicy = "none"
	ClientAuthWant    ClientAuthPolicy = "want"
	ClientAuthRequire ClientAuthPolicy = "require"
)

// ParseClientAuthPolicy parses a policy name case-insensitively. "need" is
// accepted for require.
func ParseClientAuthPolicy(s string) (ClientAuthPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return ClientAuthNone, nil
	case "want":
		return ClientAuthWant, nil
	case "require", "need":
		return ClientAuthRequire, nil
	default:
		return "", fmt.Errorf("unknown client auth policy %q", s)
	}
}

// TLS maps the policy onto crypto/tls with verification against ClientCAs.
func (p ClientAuthPolicy) TLS() tls.ClientAuthType {
	switch p {
	case ClientAuthWant:
		return tls.VerifyClientCertIfGiven
	case ClientAuthRequire:
		return tls.RequireAndVerifyClientCert
	default:
		return tls.NoClientCert
	}
}

// unverified maps the policy for a context that trusts every peer.
func (p ClientAuthPolicy) unverified() tls.ClientAuthType {
	switch p {
	case ClientAuthWant:
		return tls.RequestClientCert
	case ClientAuthRequire:
		return tls.RequireAnyClientCert
	default:
		return tls.NoClientCert
	}
}

// TrustPolicy selects where peer trust anchors come from.
type TrustPolicy string

// Trust policies.
const (
	// TrustSelf uses the key store's own certificates as anchors.
	TrustSelf TrustPolicy = "self"

	// TrustStore uses a separate trust store.
	TrustStore TrustPolicy = "store"

	// TrustAll skips peer verification for this context only.
	TrustAll TrustPolicy = "all"
)

// ParseTrustPolicy parses a trust policy name. Empty yields "".
func ParseTrustPolicy(s string) (TrustPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "self":
		return TrustSelf, nil
	case "store":
		return TrustStore, nil
	case "all":
		return TrustAll, nil
	default:
		return "", fmt.Errorf("unknown trust policy %q", s)
	}
}

// DefaultMinVersion is the protocol floor when none is configured.
const DefaultMinVersion = "1.2"

// DefaultCipherSuites are used when none are configured.
var DefaultCipherSuites = []string{
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
}

// ParseVersion accepts "1.2", "TLSv1.2" and "TLS1.2" forms.
func ParseVersion(s string) (uint16, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		v = DefaultMinVersion
	}
	upper := strings.ToUpper(v)
	upper = strings.TrimPrefix(upper, "TLSV")
	upper = strings.TrimPrefix(upper, "TLS")
	switch upper {
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported protocol version %q", s)
	}
}

// VersionName is the inverse of ParseVersion.
func VersionName(v uint16) string {
	switch v {
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return tls.VersionName(v)
	}
}

// ParseCipherSuites resolves IANA suite names. Names from the insecure list
// are rejected. An empty list yields DefaultCipherSuites.
func ParseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		names = DefaultCipherSuites
	}

	known := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		known[cs.Name] = cs.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
