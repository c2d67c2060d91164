package health

import (
	"context"
	"crypto/x509"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultExpiryWarning is how far ahead of NotAfter a certificate turns
// DEGRADED.
const DefaultExpiryWarning = 30 * 24 * time.Hour

// TransportChecker reports on the certificate the server presents.
//
// It is DOWN once the certificate has expired (or is not yet valid) and
// DEGRADED inside the warning window.
type TransportChecker struct {
	leaf *x509.Certificate
	warn time.Duration
	now  func() time.Time
}

// NewTransportChecker creates a checker for leaf. A non-positive warn means
// DefaultExpiryWarning.
func NewTransportChecker(leaf *x509.Certificate, warn time.Duration) *TransportChecker {
	if warn <= 0 {
		warn = DefaultExpiryWarning
	}
	return &TransportChecker{leaf: leaf, warn: warn, now: time.Now}
}

// Name returns the name of this checker.
func (c *TransportChecker) Name() string { return "tls" }

// Check evaluates the certificate validity window.
func (c *TransportChecker) Check(context.Context) Result {
	if c.leaf == nil {
		return Down("no certificate configured", ErrCertificateExpired)
	}

	now := c.now()
	left := c.leaf.NotAfter.Sub(now)
	details := map[string]any{
		"subject":    c.leaf.Subject.String(),
		"issuer":     c.leaf.Issuer.String(),
		"not_before": c.leaf.NotBefore.UTC().Format(time.RFC3339),
		"not_after":  c.leaf.NotAfter.UTC().Format(time.RFC3339),
		"days_left":  int(left.Hours() / 24),
	}

	switch {
	case now.After(c.leaf.NotAfter):
		return Down("certificate expired", ErrCertificateExpired).WithDetails(details)
	case now.Before(c.leaf.NotBefore):
		return Down("certificate not yet valid", ErrCertificateExpired).WithDetails(details)
	case left < c.warn:
		return Degraded(fmt.Sprintf("certificate expires in %d days", int(left.Hours()/24))).WithDetails(details)
	default:
		return Up("certificate valid").WithDetails(details)
	}
}

// MaterialChecker turns DEGRADED once any watched key or trust store changes
// on disk. The running transport keeps its startup material, so a change
// means a restart is pending.
type MaterialChecker struct {
	mu      sync.Mutex
	changed map[string]time.Time
}

// NewMaterialChecker creates a checker with nothing changed.
func NewMaterialChecker() *MaterialChecker {
	return &MaterialChecker{changed: map[string]time.Time{}}
}

// Name returns the name of this checker.
func (c *MaterialChecker) Name() string { return "material" }

// Changed records a change of path. It is shaped to be the watcher callback.
func (c *MaterialChecker) Changed(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed[path] = time.Now()
}

// Check reports DEGRADED with the changed paths, UP otherwise.
func (c *MaterialChecker) Check(context.Context) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.changed) == 0 {
		return Up("material unchanged since startup")
	}

	paths := make([]string, 0, len(c.changed))
	for p := range c.changed {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	r := Degraded("material changed on disk; restart to apply").WithDetails(map[string]any{"paths": paths})
	r.Error = ErrMaterialChanged
	return r
}
