package tlsctx

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport context construction.
var (
	// ErrAlgorithmUnavailable indicates an unsupported protocol version,
	// cipher suite or key algorithm.
	ErrAlgorithmUnavailable = errors.New("tlsctx: algorithm unavailable")

	// ErrInitializationFailed indicates key or trust material that cannot
	// form a usable context.
	ErrInitializationFailed = errors.New("tlsctx: initialization failed")
)

// BuildError describes a failed Build.
type BuildError struct {
	// Step names the stage that failed, e.g. "key", "trust", "cipher_suites".
	Step string

	// Kind is ErrAlgorithmUnavailable or ErrInitializationFailed.
	Kind error

	// Cause is the underlying error if any.
	Cause error
}

// Error returns the error message.
func (e *BuildError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v: step=%s", e.Kind, e.Step)
	}
	return fmt.Sprintf("%v: step=%s: %v", e.Kind, e.Step, e.Cause)
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target.
func (e *BuildError) Is(target error) bool {
	return target == e.Kind
}

func unavailable(step string, cause error) error {
	return &BuildError{Step: step, Kind: ErrAlgorithmUnavailable, Cause: cause}
}

func initFailed(step string, cause error) error {
	return &BuildError{Step: step, Kind: ErrInitializationFailed, Cause: cause}
}
