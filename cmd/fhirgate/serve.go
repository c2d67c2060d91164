package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/fhirgate/config"
	"github.com/jonwraymond/fhirgate/observe"
	"github.com/jonwraymond/fhirgate/tlsctx/alwaystrust"
	"github.com/jonwraymond/fhirgate/truststore"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("address", "", "Listen address override")
	cmd.Flags().String("upstream", "", "Upstream FHIR server URL override")
	cmd.Flags().Bool("always-trust", false, "Disable TLS verification for default HTTP clients process-wide (development only)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	opts, err := parseCLIOptions(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	obs, err := newObserver(ctx, cfg, registry)
	if err != nil {
		return err
	}
	logger := obs.Logger()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "telemetry shutdown failed", observe.Err(err))
		}
	}()

	// Must precede every HTTP client constructed below.
	if opts.AlwaysTrust {
		alwaystrust.Install(logger)
	}

	defer func() {
		if err := truststore.RunCleanup(); err != nil {
			logger.Warn(context.Background(), "temporary store cleanup failed", observe.Err(err))
		}
	}()

	g, err := newGateway(ctx, cfg, obs, registry)
	if err != nil {
		logger.Error(ctx, "startup failed", observe.Err(err))
		return err
	}
	defer g.outbound.CloseIdleConnections()

	watcher, err := truststore.NewWatcher(cfg.TLS.Locations(), logger)
	if err != nil {
		logger.Warn(ctx, "credential store watch disabled", observe.Err(err))
	} else {
		defer func() { _ = watcher.Close() }()
		go watcher.Run(ctx, g.material.Changed)
	}

	srv := g.Server()
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", observe.F("address", srv.Addr))
		errCh <- srv.ListenAndServeTLS("", "")
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server failed", observe.Err(err))
			return err
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "shutdown failed", observe.Err(err))
			return err
		}
	}

	logger.Info(context.Background(), "gateway stopped")
	return nil
}

func newObserver(ctx context.Context, cfg *config.Config, registry prometheus.Registerer) (observe.Observer, error) {
	oc := cfg.Observability.Observe(version)
	oc.Metrics.Registerer = registry
	return observe.NewObserver(ctx, oc)
}
