package tlsctx

import (
	"context"
	"fmt"

	"github.com/jonwraymond/fhirgate/observe"
	"github.com/jonwraymond/fhirgate/truststore"
)

// ConnectorSettings are path-based TLS settings for a listener.
type ConnectorSettings struct {
	KeyStore   StoreFile
	TrustStore *StoreFile

	ClientAuth   ClientAuthPolicy
	TrustPolicy  TrustPolicy
	MinVersion   string
	CipherSuites []string
}

// StoreFile is a credential store available on disk.
type StoreFile struct {
	Path       string
	Type       string
	Passphrase string
}

// Connector is a listener collaborator that only accepts filesystem paths.
type Connector interface {
	Configure(ctx context.Context, settings ConnectorSettings) error
}

// ConnectorOptions describes the stores and policies to hand to a Connector.
type ConnectorOptions struct {
	Key   truststore.Spec
	Trust *truststore.Spec

	ClientAuth   ClientAuthPolicy
	TrustPolicy  TrustPolicy
	MinVersion   string
	CipherSuites []string

	Logger observe.Logger
}

// CustomizeConnector materializes the configured stores to disk and passes
// their paths to conn. Temporary files are removed by truststore.RunCleanup.
func CustomizeConnector(ctx context.Context, loader *truststore.Loader, conn Connector, opts ConnectorOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	logger = observe.WithComponent(logger, "tlsctx.connector")

	key, err := loader.Materialize(ctx, opts.Key.Location)
	if err != nil {
		return fmt.Errorf("materialize key store: %w", err)
	}

	settings := ConnectorSettings{
		KeyStore:     StoreFile{Path: key.Path, Type: opts.Key.Type, Passphrase: opts.Key.Passphrase},
		ClientAuth:   opts.ClientAuth,
		TrustPolicy:  opts.TrustPolicy,
		MinVersion:   opts.MinVersion,
		CipherSuites: opts.CipherSuites,
	}
	if settings.MinVersion == "" {
		settings.MinVersion = DefaultMinVersion
	}
	if len(settings.CipherSuites) == 0 {
		settings.CipherSuites = append([]string(nil), DefaultCipherSuites...)
	}

	if opts.Trust != nil && opts.Trust.Location != "" {
		trust, err := loader.Materialize(ctx, opts.Trust.Location)
		if err != nil {
			return fmt.Errorf("materialize trust store: %w", err)
		}
		settings.TrustStore = &StoreFile{Path: trust.Path, Type: opts.Trust.Type, Passphrase: opts.Trust.Passphrase}
	}

	if err := conn.Configure(ctx, settings); err != nil {
		return fmt.Errorf("configure connector: %w", err)
	}

	logger.Info(ctx, "connector configured",
		observe.F("key_store", key.Path),
		observe.F("temporary", key.Temporary),
		observe.F("min_version", settings.MinVersion),
	)
	return nil
}

// ListenerConnector is a Connector that builds an inbound Context from the
// paths it is given.
type ListenerConnector struct {
	Loader *truststore.Loader
	Logger observe.Logger

	ctx *Context
}

// Configure loads the stores from disk and builds the listener context.
func (l *ListenerConnector) Configure(ctx context.Context, s ConnectorSettings) error {
	m := Material{Key: truststore.Spec{
		Location:   truststore.FilePrefix + s.KeyStore.Path,
		Type:       s.KeyStore.Type,
		Passphrase: s.KeyStore.Passphrase,
	}}
	if s.TrustStore != nil {
		m.Trust = &truststore.Spec{
			Location:   truststore.FilePrefix + s.TrustStore.Path,
			Type:       s.TrustStore.Type,
			Passphrase: s.TrustStore.Passphrase,
		}
	}

	tc, err := LoadAndBuild(ctx, l.Loader, m, Options{
		ClientAuth:   s.ClientAuth,
		TrustPolicy:  s.TrustPolicy,
		MinVersion:   s.MinVersion,
		CipherSuites: s.CipherSuites,
		Logger:       l.Logger,
	})
	if err != nil {
		return err
	}
	l.ctx = tc
	return nil
}

// Context returns the built context, or nil before Configure succeeds.
func (l *ListenerConnector) Context() *Context { return l.ctx }

var _ Connector = (*ListenerConnector)(nil)
