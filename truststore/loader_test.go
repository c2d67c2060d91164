package truststore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/jonwraymond/fhirgate/internal/pkitest"
)

const pass = "changeit"

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"PKCS12", TypePKCS12, false},
		{"pkcs12", TypePKCS12, false},
		{"p12", TypePKCS12, false},
		{"PFX", TypePKCS12, false},
		{"", TypePKCS12, false},
		{"jks", TypeJKS, false},
		{"Pem", TypePEM, false},
		{"BKS", "", true},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoader_Load_KeyStores(t *testing.T) {
	ca := pkitest.NewCA(t, "test-ca")
	leaf := ca.Issue(t, "server")
	dir := t.TempDir()

	tests := []struct {
		name string
		file string
		data []byte
		typ  string
	}{
		{"pkcs12", "server.p12", leaf.PKCS12(t, pass), "PKCS12"},
		{"jks", "server.jks", leaf.JKS(t, pass), "JKS"},
		{"pem", "server.pem", leaf.PEM(t), "PEM"},
	}

	loader := NewLoader(LoaderConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeFile(t, dir, tt.file, tt.data)

			store, err := loader.Load(context.Background(), Spec{Location: p, Type: tt.typ, Passphrase: pass})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !store.HasPrivateKey() {
				t.Fatal("HasPrivateKey() = false, want true")
			}
			if store.Leaf() == nil || store.Leaf().Subject.CommonName != "server" {
				t.Errorf("Leaf() = %v, want CN=server", store.Leaf())
			}
			if got := len(store.Chain()); got != 2 {
				t.Errorf("len(Chain()) = %d, want 2", got)
			}
			if store.Location() != p {
				t.Errorf("Location() = %q, want %q", store.Location(), p)
			}
			if store.Passphrase() != pass {
				t.Errorf("Passphrase() = %q, want %q", store.Passphrase(), pass)
			}
		})
	}
}

func TestLoader_Load_TrustStores(t *testing.T) {
	ca := pkitest.NewCA(t, "test-ca")
	other := pkitest.NewCA(t, "other-ca")
	dir := t.TempDir()

	tests := []struct {
		name string
		file string
		data []byte
		typ  string
	}{
		{"pkcs12", "trust.p12", pkitest.PKCS12TrustStore(t, pass, ca.Cert, other.Cert), "PKCS12"},
		{"jks", "trust.jks", pkitest.JKSTrustStore(t, pass, ca.Cert, other.Cert), "JKS"},
		{"pem", "trust.pem", pkitest.CertsPEM(ca.Cert, other.Cert), "PEM"},
	}

	loader := NewLoader(LoaderConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeFile(t, dir, tt.file, tt.data)

			store, err := loader.Load(context.Background(), Spec{Location: p, Type: tt.typ, Passphrase: pass})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if store.HasPrivateKey() {
				t.Error("HasPrivateKey() = true, want false")
			}
			if got := len(store.TrustAnchors()); got != 2 {
				t.Errorf("len(TrustAnchors()) = %d, want 2", got)
			}
			if got := len(store.Certificates()); got != 2 {
				t.Errorf("len(Certificates()) = %d, want 2", got)
			}
		})
	}
}

func TestLoader_Load_Corrupt(t *testing.T) {
	leaf := pkitest.SelfSigned(t, "server")
	dir := t.TempDir()
	p12 := writeFile(t, dir, "server.p12", leaf.PKCS12(t, pass))
	jks := writeFile(t, dir, "server.jks", leaf.JKS(t, pass))
	garbage := writeFile(t, dir, "garbage.bin", []byte("not a key store"))

	tests := []struct {
		name string
		spec Spec
	}{
		{"pkcs12 wrong passphrase", Spec{Location: p12, Type: "PKCS12", Passphrase: "wrong"}},
		{"jks wrong passphrase", Spec{Location: jks, Type: "JKS", Passphrase: "wrong"}},
		{"pkcs12 read as jks", Spec{Location: p12, Type: "JKS", Passphrase: pass}},
		{"jks read as pkcs12", Spec{Location: jks, Type: "PKCS12", Passphrase: pass}},
		{"garbage pkcs12", Spec{Location: garbage, Type: "PKCS12", Passphrase: pass}},
		{"garbage pem", Spec{Location: garbage, Type: "PEM"}},
		{"unknown type", Spec{Location: p12, Type: "BKS", Passphrase: pass}},
	}

	loader := NewLoader(LoaderConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := loader.Load(context.Background(), tt.spec)
			if store != nil {
				t.Errorf("Load() store = %v, want nil", store)
			}
			if !errors.Is(err, ErrMaterialCorrupt) {
				t.Fatalf("Load() error = %v, want %v", err, ErrMaterialCorrupt)
			}
			var merr *MaterialError
			if !errors.As(err, &merr) {
				t.Fatalf("Load() error type = %T, want *MaterialError", err)
			}
			if merr.Location != tt.spec.Location {
				t.Errorf("MaterialError.Location = %q, want %q", merr.Location, tt.spec.Location)
			}
		})
	}
}

func TestLoader_Load_NotFound(t *testing.T) {
	loader := NewLoader(LoaderConfig{Resources: fstest.MapFS{}})
	missing := filepath.Join(t.TempDir(), "missing.p12")

	for _, loc := range []string{missing, "file:" + missing, "classpath:missing.p12", ""} {
		t.Run(loc, func(t *testing.T) {
			_, err := loader.Load(context.Background(), Spec{Location: loc, Type: "PKCS12"})
			if !errors.Is(err, ErrMaterialNotFound) {
				t.Errorf("Load(%q) error = %v, want %v", loc, err, ErrMaterialNotFound)
			}
			if errors.Is(err, ErrMaterialCorrupt) {
				t.Errorf("Load(%q) error also matches %v", loc, ErrMaterialCorrupt)
			}
		})
	}

	bare := NewLoader(LoaderConfig{})
	if _, err := bare.Load(context.Background(), Spec{Location: "classpath:x.p12"}); !errors.Is(err, ErrMaterialNotFound) {
		t.Errorf("Load() without resources error = %v, want %v", err, ErrMaterialNotFound)
	}
}

func TestLoader_Load_Locators(t *testing.T) {
	leaf := pkitest.SelfSigned(t, "server")
	data := leaf.PKCS12(t, pass)
	p := writeFile(t, t.TempDir(), "server.p12", data)

	loader := NewLoader(LoaderConfig{Resources: fstest.MapFS{
		"certs/server.p12": &fstest.MapFile{Data: data},
	}})

	for _, loc := range []string{p, "file:" + p, "file://" + p, "classpath:certs/server.p12", "classpath:/certs/server.p12"} {
		t.Run(loc, func(t *testing.T) {
			store, err := loader.Load(context.Background(), Spec{Location: loc, Type: "pkcs12", Passphrase: pass})
			if err != nil {
				t.Fatalf("Load(%q) error = %v", loc, err)
			}
			if !store.HasPrivateKey() {
				t.Errorf("Load(%q) lost the private key", loc)
			}
		})
	}
}

func TestCredentialStore_AccessorsReturnCopies(t *testing.T) {
	ca := pkitest.NewCA(t, "ca")
	leaf := ca.Issue(t, "server")
	p := writeFile(t, t.TempDir(), "server.pem", leaf.PEM(t))

	store, err := NewLoader(LoaderConfig{}).Load(context.Background(), Spec{Location: p, Type: "PEM"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	chain := store.Chain()
	chain[0] = nil
	if store.Leaf() == nil {
		t.Error("mutating Chain() result changed the store")
	}
	if store.CertPool() == nil {
		t.Error("CertPool() = nil")
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"/etc/certs/a.p12", "/etc/certs/a.p12", true},
		{"file:/etc/certs/a.p12", "/etc/certs/a.p12", true},
		{"file:///etc/certs/a.p12", "/etc/certs/a.p12", true},
		{"classpath:a.p12", "", false},
	}
	for _, tt := range tests {
		got, ok := LocalPath(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("LocalPath(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
