package truststore

import (
	"errors"
	"fmt"
)

// Sentinel errors for trust material loading.
var (
	// ErrMaterialNotFound indicates the locator does not resolve to readable bytes.
	ErrMaterialNotFound = errors.New("truststore: material not found")

	// ErrMaterialCorrupt indicates the bytes could not be parsed or decrypted,
	// the passphrase was wrong, or the type did not match the content.
	ErrMaterialCorrupt = errors.New("truststore: material corrupt")
)

// MaterialError describes a failure to load one credential store.
type MaterialError struct {
	// Location is the locator as configured.
	Location string

	// Type is the requested encoding type.
	Type Type

	// Kind is ErrMaterialNotFound or ErrMaterialCorrupt.
	Kind error

	// Cause is the underlying error if any.
	Cause error
}

// Error returns the error message.
func (e *MaterialError) Error() string {
	msg := fmt.Sprintf("%v: location=%q type=%q", e.Kind, e.Location, e.Type)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *MaterialError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target.
func (e *MaterialError) Is(target error) bool {
	return target == e.Kind
}

func notFound(spec Spec, typ Type, cause error) error {
	return &MaterialError{Location: spec.Location, Type: typ, Kind: ErrMaterialNotFound, Cause: cause}
}

func corrupt(spec Spec, typ Type, cause error) error {
	return &MaterialError{Location: spec.Location, Type: typ, Kind: ErrMaterialCorrupt, Cause: cause}
}
