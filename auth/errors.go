package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for token acquisition and inbound authorization.
var (
	// ErrTokenAcquisitionFailed indicates the token endpoint call failed:
	// transport error, non-2xx status, or a response without access_token.
	ErrTokenAcquisitionFailed = errors.New("auth: token acquisition failed")

	// ErrUnauthenticated indicates an inbound request was denied.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// Verification errors reported by TokenVerifier implementations.
	ErrTokenMalformed = errors.New("auth: token malformed")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenInvalid   = errors.New("auth: token invalid")
	ErrKeyNotFound    = errors.New("auth: signing key not found")
)

// TokenAcquisitionError describes a failed token request.
type TokenAcquisitionError struct {
	// Endpoint is the token URL that was called.
	Endpoint string

	// ClientID is the client the token was requested for.
	ClientID string

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *TokenAcquisitionError) Error() string {
	return fmt.Sprintf("token acquisition failed: endpoint=%q client_id=%q: %v", e.Endpoint, e.ClientID, e.Cause)
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *TokenAcquisitionError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target.
func (e *TokenAcquisitionError) Is(target error) bool {
	return target == ErrTokenAcquisitionFailed
}

// UnauthenticatedError is a denied authorization decision.
type UnauthenticatedError struct {
	// Reason is the decision reason.
	Reason string

	// Cause is the verification error, if the token was rejected.
	Cause error
}

// Error returns the error message.
func (e *UnauthenticatedError) Error() string {
	return "unauthenticated: " + e.Reason
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *UnauthenticatedError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target.
func (e *UnauthenticatedError) Is(target error) bool {
	return target == ErrUnauthenticated
}
