package truststore

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	keystore "github.com/pavlo-v-chernykh/keystore-go/v4"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/jonwraymond/fhirgate/observe"
)

// Locator prefixes.
const (
	FilePrefix      = "file:"
	ClasspathPrefix = "classpath:"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// Resources holds packaged resources addressed by "classpath:" locators.
	// Nil means classpath locators never resolve.
	Resources fs.FS

	// TempDir receives materialized resources. Default: os.TempDir().
	TempDir string

	// Logger receives load events. Default: no-op.
	Logger observe.Logger
}

// Loader reads credential stores from filesystem paths or packaged resources.
//
// Loader holds no mutable state and is safe for concurrent use.
type Loader struct {
	resources fs.FS
	tempDir   string
	logger    observe.Logger
}

// NewLoader creates a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Loader{
		resources: cfg.Resources,
		tempDir:   cfg.TempDir,
		logger:    observe.WithComponent(logger, "truststore"),
	}
}

// Load resolves spec.Location, reads its bytes and parses them as spec.Type.
// Failures match ErrMaterialNotFound or ErrMaterialCorrupt. There is no retry.
func (l *Loader) Load(ctx context.Context, spec Spec) (*CredentialStore, error) {
	typ, err := ParseType(spec.Type)
	if err != nil {
		return nil, corrupt(spec, Type(spec.Type), err)
	}

	data, err := l.read(spec.Location)
	if err != nil {
		return nil, notFound(spec, typ, err)
	}

	store, err := decode(typ, data, spec.Passphrase)
	if err != nil {
		return nil, corrupt(spec, typ, err)
	}
	store.location = spec.Location
	store.typ = typ
	store.passphrase = spec.Passphrase

	l.logger.Info(ctx, "trust material loaded",
		observe.F("location", spec.Location),
		observe.F("type", string(typ)),
		observe.F("private_key", store.HasPrivateKey()),
		observe.F("chain", len(store.chain)),
		observe.F("anchors", len(store.anchors)),
	)
	return store, nil
}

// LocalPath returns the filesystem path of a locator, or false when the
// locator names a packaged resource.
func LocalPath(location string) (string, bool) {
	switch {
	case strings.HasPrefix(location, ClasspathPrefix):
		return "", false
	case strings.HasPrefix(location, FilePrefix):
		p := strings.TrimPrefix(location, FilePrefix)
		if strings.HasPrefix(p, "//") {
			p = strings.TrimPrefix(p, "//")
		}
		return filepath.Clean(p), true
	default:
		return filepath.Clean(location), true
	}
}

func (l *Loader) read(location string) ([]byte, error) {
	if strings.TrimSpace(location) == "" {
		return nil, errors.New("empty locator")
	}
	if path, ok := LocalPath(location); ok {
		return os.ReadFile(path)
	}
	if l.resources == nil {
		return nil, fmt.Errorf("no packaged resources configured for %q", location)
	}
	name := strings.TrimPrefix(strings.TrimPrefix(location, ClasspathPrefix), "/")
	return fs.ReadFile(l.resources, name)
}

func decode(typ Type, data []byte, passphrase string) (*CredentialStore, error) {
	switch typ {
	case TypePKCS12:
		return decodePKCS12(data, passphrase)
	case TypeJKS:
		return decodeJKS(data, passphrase)
	case TypePEM:
		return decodePEM(data)
	default:
		return nil, fmt.Errorf("unsupported store type %q", typ)
	}
}

func decodePKCS12(data []byte, passphrase string) (*CredentialStore, error) {
	key, cert, cas, err := pkcs12.DecodeChain(data, passphrase)
	if err == nil {
		chain := append([]*x509.Certificate{cert}, cas...)
		return &CredentialStore{key: key, chain: chain}, nil
	}
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return nil, err
	}

	certs, trustErr := pkcs12.DecodeTrustStore(data, passphrase)
	if trustErr != nil {
		return nil, fmt.Errorf("decode pkcs12: %w", errors.Join(err, trustErr))
	}
	if len(certs) == 0 {
		return nil, errors.New("pkcs12 store holds no entries")
	}
	return &CredentialStore{anchors: certs}, nil
}

func decodeJKS(data []byte, passphrase string) (*CredentialStore, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), []byte(passphrase)); err != nil {
		return nil, fmt.Errorf("decode jks: %w", err)
	}

	aliases := ks.Aliases()
	sort.Strings(aliases)

	store := &CredentialStore{}
	for _, alias := range aliases {
		switch {
		case ks.IsPrivateKeyEntry(alias):
			if store.key != nil {
				continue
			}
			entry, err := ks.GetPrivateKeyEntry(alias, []byte(passphrase))
			if err != nil {
				return nil, fmt.Errorf("jks entry %q: %w", alias, err)
			}
			key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("jks entry %q: parse key: %w", alias, err)
			}
			for _, c := range entry.CertificateChain {
				cert, err := x509.ParseCertificate(c.Content)
				if err != nil {
					return nil, fmt.Errorf("jks entry %q: parse certificate: %w", alias, err)
				}
				store.chain = append(store.chain, cert)
			}
			store.key = key

		case ks.IsTrustedCertificateEntry(alias):
			entry, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				return nil, fmt.Errorf("jks entry %q: %w", alias, err)
			}
			cert, err := x509.ParseCertificate(entry.Certificate.Content)
			if err != nil {
				return nil, fmt.Errorf("jks entry %q: parse certificate: %w", alias, err)
			}
			store.anchors = append(store.anchors, cert)
		}
	}

	if store.key == nil && len(store.anchors) == 0 {
		return nil, errors.New("jks store holds no entries")
	}
	return store, nil
}

// decodePEM accepts certificates and at most one unencrypted private key.
// With a key present the certificates form its chain, otherwise they are
// trust anchors.
func decodePEM(data []byte) (*CredentialStore, error) {
	var (
		key   crypto.PrivateKey
		certs []*x509.Certificate
	)

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse certificate: %w", err)
			}
			certs = append(certs, cert)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			if key != nil {
				return nil, errors.New("pem holds more than one private key")
			}
			k, err := parsePEMKey(block)
			if err != nil {
				return nil, err
			}
			key = k
		}
	}

	if len(certs) == 0 {
		return nil, errors.New("no certificates found in pem data")
	}
	if key == nil {
		return &CredentialStore{anchors: certs}, nil
	}
	return &CredentialStore{key: key, chain: certs}, nil
}

func parsePEMKey(block *pem.Block) (crypto.PrivateKey, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		switch k.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
			return k, nil
		default:
			return nil, fmt.Errorf("unsupported private key type %T", k)
		}
	}
}
