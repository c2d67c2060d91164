package health

import "errors"

var (
	// ErrCheckTimeout indicates a health check did not finish in time.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates a checker was not found.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrCertificateExpired indicates the presented certificate is no longer valid.
	ErrCertificateExpired = errors.New("health: certificate expired")

	// ErrMaterialChanged indicates key or trust material changed on disk
	// after startup.
	ErrMaterialChanged = errors.New("health: material changed since startup")
)
