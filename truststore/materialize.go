package truststore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/jonwraymond/fhirgate/observe"
)

// Materialized is a credential store available as a filesystem path.
type Materialized struct {
	// Path is the file to hand to a path-only consumer.
	Path string

	// Temporary is true when Path was written by Materialize and is deleted
	// by RunCleanup.
	Temporary bool
}

// Materialize returns a filesystem path for location. Filesystem locators are
// returned as-is with no cleanup. Packaged resources are copied to a 0600
// temporary file whose deletion is registered with RunCleanup.
func (l *Loader) Materialize(ctx context.Context, location string) (Materialized, error) {
	spec := Spec{Location: location}

	if p, ok := LocalPath(location); ok {
		if _, err := os.Stat(p); err != nil {
			return Materialized{}, notFound(spec, "", err)
		}
		return Materialized{Path: p}, nil
	}

	data, err := l.read(location)
	if err != nil {
		return Materialized{}, notFound(spec, "", err)
	}

	f, err := os.CreateTemp(l.tempDir, "fhirgate-*-"+path.Base(strings.TrimPrefix(location, ClasspathPrefix)))
	if err != nil {
		return Materialized{}, fmt.Errorf("truststore: create temp file: %w", err)
	}
	name := f.Name()
	RegisterCleanup(func() error {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})

	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		return Materialized{}, fmt.Errorf("truststore: chmod temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return Materialized{}, fmt.Errorf("truststore: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Materialized{}, fmt.Errorf("truststore: close temp file: %w", err)
	}

	l.logger.Info(ctx, "trust material materialized",
		observe.F("location", location),
		observe.F("path", name),
	)
	return Materialized{Path: name, Temporary: true}, nil
}

// cleanupRegistry holds process-exit actions, run in reverse registration
// order.
type cleanupRegistry struct {
	mu  sync.Mutex
	fns []func() error
}

var cleanups cleanupRegistry

// RegisterCleanup adds fn to the process cleanup registry.
func RegisterCleanup(fn func() error) {
	cleanups.mu.Lock()
	defer cleanups.mu.Unlock()
	cleanups.fns = append(cleanups.fns, fn)
}

// RunCleanup runs and clears every registered cleanup action. It is safe to
// call more than once; later calls only run actions registered since.
func RunCleanup() error {
	cleanups.mu.Lock()
	fns := cleanups.fns
	cleanups.fns = nil
	cleanups.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
