// Package alwaystrust disables certificate verification for every TLS
// connection made through the default HTTP client and transport.
//
// Install is opt-in, irreversible and takes effect at most once per process.
// It is meant to be called from the earliest startup hook, before any client
// is constructed.
package alwaystrust

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/fhirgate/observe"
)

var (
	once      sync.Once
	installed atomic.Bool
)

// Install replaces the TLS configuration of http.DefaultTransport with one
// that accepts any peer certificate and points http.DefaultClient at it.
// Calls after the first are no-ops.
func Install(logger observe.Logger) {
	once.Do(func() {
		if logger == nil {
			logger = observe.NopLogger()
		}

		t, ok := http.DefaultTransport.(*http.Transport)
		if ok {
			var cfg *tls.Config
			if t.TLSClientConfig != nil {
				cfg = t.TLSClientConfig.Clone()
			} else {
				cfg = &tls.Config{}
			}
			cfg.InsecureSkipVerify = true
			t.TLSClientConfig = cfg
			t.CloseIdleConnections()
		} else {
			t = &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
			http.DefaultTransport = t
		}
		http.DefaultClient.Transport = t
		installed.Store(true)

		observe.WithComponent(logger, "alwaystrust").Warn(context.Background(),
			"process-wide TLS verification disabled for default HTTP clients")
	})
}

// Installed reports whether Install has run.
func Installed() bool { return installed.Load() }
