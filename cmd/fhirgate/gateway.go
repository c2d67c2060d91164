package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jonwraymond/fhirgate/auth"
	"github.com/jonwraymond/fhirgate/config"
	"github.com/jonwraymond/fhirgate/fhirclient"
	"github.com/jonwraymond/fhirgate/health"
	"github.com/jonwraymond/fhirgate/observe"
	"github.com/jonwraymond/fhirgate/policy"
	"github.com/jonwraymond/fhirgate/tlsctx"
	"github.com/jonwraymond/fhirgate/truststore"
)

const (
	fhirPrefix       = "/fhir"
	healthPrefix     = "/actuator/health"
	prometheusPath   = "/actuator/prometheus"
	testerMetadata   = "/tester/metadata"
	jwksFetchTimeout = 30 * time.Second

	forwardedUserHeader = "X-Forwarded-User"
)

// gateway is the assembled request pipeline.
type gateway struct {
	cfg      *config.Config
	logger   observe.Logger
	mw       *observe.Middleware
	loader   *truststore.Loader
	inbound  *tlsctx.Context
	outbound *tlsctx.Context
	engine   *auth.Engine
	factory  fhirclient.Factory
	health   *health.Aggregator
	material *health.MaterialChecker
	probe    *http.Client
	handler  http.Handler
}

// newGateway loads the credential stores, builds both transport contexts
// and wires the authorization pipeline. gatherer backs the prometheus
// endpoint; nil means the default gatherer.
func newGateway(ctx context.Context, cfg *config.Config, obs observe.Observer, gatherer prometheus.Gatherer) (*gateway, error) {
	logger := obs.Logger()
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, err
	}
	g := &gateway{cfg: cfg, logger: logger, mw: mw}

	g.loader = truststore.NewLoader(truststore.LoaderConfig{
		Resources: resources(cfg.Server.ResourcesDir),
		Logger:    logger,
	})

	conn := &tlsctx.ListenerConnector{Loader: g.loader, Logger: logger}
	if err := tlsctx.CustomizeConnector(ctx, g.loader, conn, cfg.TLS.ConnectorOptions(logger)); err != nil {
		return nil, fmt.Errorf("inbound transport: %w", err)
	}
	g.inbound = conn.Context()

	outbound, err := tlsctx.LoadAndBuild(ctx, g.loader, cfg.TLS.Material(), cfg.TLS.Options(logger))
	if err != nil {
		return nil, fmt.Errorf("outbound transport: %w", err)
	}
	g.outbound = outbound

	verifier := auth.NewJWTVerifier(auth.JWTConfig{
		Issuer:       cfg.Authorization.Issuer,
		Audience:     cfg.Authorization.Audience,
		ValidMethods: cfg.Authorization.ValidMethods,
	}, g.keyProvider())

	g.engine, err = auth.NewEngine(auth.EngineConfig{
		RequiredRole: cfg.Authorization.RequiredRole,
		ClientID:     cfg.Authorization.ClientID,
		Verifier:     verifier,
		Logger:       logger,
		Tracer:       obs.Tracer(),
		Metrics:      obs.Metrics(),
	})
	if err != nil {
		return nil, err
	}

	if cfg.OAuth2.Configured() {
		tokens := auth.NewTokenClient(auth.TokenClientConfig{
			Logger:  logger,
			Tracer:  obs.Tracer(),
			Metrics: obs.Metrics(),
		})
		g.factory, err = fhirclient.NewTokenFactory(fhirclient.TokenFactoryConfig{
			Transport: g.outbound,
			Tokens:    tokens,
			Credentials: fhirclient.Credentials{
				AuthServerURL: cfg.OAuth2.AuthServerURL,
				ClientID:      cfg.OAuth2.ClientID,
				ClientSecret:  cfg.OAuth2.ClientSecret,
			},
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
	}

	g.probe = g.outbound.HTTPClient(health.DefaultCheckTimeout)
	g.health = health.NewAggregator(0)
	g.health.Register(health.NewTransportChecker(g.inbound.Leaf(), health.DefaultExpiryWarning))
	g.material = health.NewMaterialChecker()
	g.health.Register(g.material)
	g.health.Register(health.NewCheckerFunc("upstream", g.checkUpstream))

	upstream, err := g.proxy()
	if err != nil {
		return nil, err
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle(fhirPrefix+"/", upstream)
	mux.Handle(testerMetadata, http.HandlerFunc(g.serveTesterMetadata))
	health.Mount(mux, healthPrefix, g.health)
	mux.Handle(prometheusPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeOutcome(w, http.StatusNotFound, "not-found", "no handler for "+r.URL.Path)
	})

	guarded := auth.Guard(policy.DefaultTable(), g.engine, logger, obs.Metrics())(mux)
	g.handler = otelhttp.NewHandler(guarded, "fhirgate")

	logger.Info(ctx, "gateway assembled",
		observe.F("upstream", cfg.Server.UpstreamURL),
		observe.F("client_auth", string(g.inbound.ClientAuth())),
		observe.F("trust_policy", string(g.inbound.TrustPolicy())),
		observe.F("required_role", g.engine.RequiredRole()),
		observe.F("tester", g.factory != nil),
	)
	return g, nil
}

// Handler returns the instrumented, guarded request handler.
func (g *gateway) Handler() http.Handler { return g.handler }

// Server returns an HTTPS server for the inbound transport context.
func (g *gateway) Server() *http.Server {
	return &http.Server{
		Addr:              g.cfg.Server.Address,
		Handler:           g.handler,
		TLSConfig:         g.inbound.ServerConfig(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (g *gateway) keyProvider() auth.KeyProvider {
	a := g.cfg.Authorization
	if a.HMACSecret != "" {
		return auth.NewStaticKeyProvider([]byte(a.HMACSecret))
	}
	return auth.NewJWKSKeyProvider(auth.JWKSConfig{
		URL:        a.KeySetURL(g.cfg.OAuth2),
		HTTPClient: g.outbound.HTTPClient(jwksFetchTimeout),
		Logger:     g.logger,
	})
}

// proxy forwards /fhir/* to the upstream base URL, replacing the /fhir
// prefix with the upstream path.
func (g *gateway) proxy() (http.Handler, error) {
	target, err := url.Parse(g.cfg.Server.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("upstream_url: %w", err)
	}
	logger := observe.WithComponent(g.logger, "proxy")

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, fhirPrefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = target.Host
			if id := auth.RequestIDFromContext(pr.In.Context()); id != "" {
				pr.Out.Header.Set(auth.RequestIDHeader, id)
			}
			pr.Out.Header.Del(forwardedUserHeader)
			if tok := auth.TokenFromContext(pr.In.Context()); tok != nil && tok.Subject() != "" {
				pr.Out.Header.Set(forwardedUserHeader, tok.Subject())
			}
		},
		Transport: g.outbound.Transport(),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error(r.Context(), "upstream request failed",
				observe.F("request_id", auth.RequestIDFromContext(r.Context())),
				observe.F("path", r.URL.Path),
				observe.Err(err),
			)
			writeOutcome(w, http.StatusBadGateway, "transient", "upstream FHIR server unavailable")
		},
	}
	return rp, nil
}

// serveTesterMetadata fetches the capability statement through a
// token-authenticated client, the way the web tester does.
func (g *gateway) serveTesterMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeOutcome(w, http.StatusMethodNotAllowed, "not-supported", "method not allowed")
		return
	}
	if g.factory == nil {
		writeOutcome(w, http.StatusServiceUnavailable, "not-supported", "oauth2 client credentials are not configured")
		return
	}

	var capability fhirclient.Resource
	err := g.mw.Around(r.Context(), "tester.metadata", func(ctx context.Context) error {
		client, err := g.factory.NewClient(ctx, fhirclient.MetadataFromRequest(r), g.cfg.FHIR.BaseURL)
		if err != nil {
			return err
		}
		capability, err = client.Capabilities(ctx)
		return err
	})
	if err != nil {
		var se *fhirclient.StatusError
		switch {
		case errors.Is(err, auth.ErrTokenAcquisitionFailed):
			writeOutcome(w, http.StatusBadGateway, "security", "token acquisition failed")
		case errors.As(err, &se):
			writeOutcome(w, http.StatusBadGateway, "exception", se.Error())
		default:
			writeOutcome(w, http.StatusBadGateway, "transient", "FHIR server unavailable")
		}
		return
	}

	w.Header().Set("Content-Type", auth.FHIRContentType)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(capability)
}

// checkUpstream probes the upstream capability statement. Any response below
// 500 counts as reachable.
func (g *gateway) checkUpstream(ctx context.Context) health.Result {
	target := strings.TrimRight(g.cfg.Server.UpstreamURL, "/") + "/metadata"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return health.Down("invalid upstream URL", err)
	}
	resp, err := g.probe.Do(req)
	if err != nil {
		return health.Down("upstream unreachable", err)
	}
	_ = resp.Body.Close()

	details := map[string]any{"url": target, "status": resp.StatusCode}
	if resp.StatusCode >= http.StatusInternalServerError {
		return health.Down("upstream failing", fmt.Errorf("status %d", resp.StatusCode)).WithDetails(details)
	}
	return health.Up("upstream reachable").WithDetails(details)
}

func writeOutcome(w http.ResponseWriter, status int, code, diagnostics string) {
	w.Header().Set("Content-Type", auth.FHIRContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(auth.NewOperationOutcome(code, diagnostics))
}

func resources(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	return os.DirFS(dir)
}
