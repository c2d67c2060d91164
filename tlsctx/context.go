package tlsctx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"sync"
	"time"

	"github.com/jonwraymond/fhirgate/truststore"
)

// Context is a built transport context.
//
// A Context is immutable and safe for concurrent use. It is built once at
// startup and never rebuilt; the TLS accessors hand out clones.
type Context struct {
	server      *tls.Config
	client      *tls.Config
	leaf        *x509.Certificate
	clientAuth  ClientAuthPolicy
	trustPolicy TrustPolicy

	transportOnce sync.Once
	transport     *http.Transport
}

// ServerConfig returns a clone of the inbound configuration.
func (c *Context) ServerConfig() *tls.Config { return c.server.Clone() }

// ClientConfig returns a clone of the outbound configuration.
func (c *Context) ClientConfig() *tls.Config { return c.client.Clone() }

// Leaf returns the certificate presented by this context.
func (c *Context) Leaf() *x509.Certificate { return c.leaf }

// ClientAuth returns the inbound client certificate policy.
func (c *Context) ClientAuth() ClientAuthPolicy { return c.clientAuth }

// TrustPolicy returns the anchor source in effect.
func (c *Context) TrustPolicy() TrustPolicy { return c.trustPolicy }

// Transport returns the context's outbound transport. It is created on first
// use from http.DefaultTransport's pooling and proxy settings, and every
// caller shares it and its connection pool.
func (c *Context) Transport() *http.Transport {
	c.transportOnce.Do(func() {
		var t *http.Transport
		if dt, ok := http.DefaultTransport.(*http.Transport); ok {
			t = dt.Clone()
		} else {
			t = &http.Transport{Proxy: http.ProxyFromEnvironment}
		}
		t.TLSClientConfig = c.ClientConfig()
		c.transport = t
	})
	return c.transport
}

// CloseIdleConnections closes idle connections in the shared transport.
func (c *Context) CloseIdleConnections() { c.Transport().CloseIdleConnections() }

// HTTPClient returns a client over the shared Transport. A zero timeout
// means none.
func (c *Context) HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Transport: c.Transport(), Timeout: timeout}
}

// Material names the stores to load for LoadAndBuild.
type Material struct {
	Key   truststore.Spec
	Trust *truststore.Spec
}

// LoadAndBuild loads the stores named by m with loader and builds a context.
// opts.Key and opts.Trust are overwritten. Loader errors are returned
// unchanged so they still match the truststore sentinels.
func LoadAndBuild(ctx context.Context, loader *truststore.Loader, m Material, opts Options) (*Context, error) {
	key, err := loader.Load(ctx, m.Key)
	if err != nil {
		return nil, err
	}
	opts.Key = key
	opts.Trust = nil

	if m.Trust != nil && m.Trust.Location != "" {
		trust, err := loader.Load(ctx, *m.Trust)
		if err != nil {
			return nil, err
		}
		opts.Trust = trust
	}
	return Build(ctx, opts)
}
