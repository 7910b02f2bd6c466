package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrNotClaimed indicates no subdomain has been claimed yet, so
	// operations that need a provisioned tunnel cannot proceed.
	ErrNotClaimed = errors.New("no subdomain claimed")

	// ErrCredentialsMissing means the encrypted tunnel credentials are
	// absent or could not be decrypted and the tunnel must be re-provisioned.
	ErrCredentialsMissing = errors.New("tunnel credentials missing")

	// ErrSealerUnavailable is returned when no machine-bound encryption key
	// can be resolved; secrets are never persisted in plaintext.
	ErrSealerUnavailable = errors.New("secret encryption unavailable")

	// ErrUnsupportedPlatform means no tunnel client binary exists for the
	// current OS/architecture pair. Not retriable.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrStartInProgress is returned when start is called while a previous
	// start or stop has not finished.
	ErrStartInProgress = errors.New("tunnel start already in progress")

	// ErrConfirmTimeout means the tunnel client never reported an
	// established connection within the confirmation window.
	ErrConfirmTimeout = errors.New("tunnel connection not confirmed before timeout")

	// ErrLocalServiceDown indicates the local HTTP service the tunnel would
	// expose did not answer its health probe.
	ErrLocalServiceDown = errors.New("local service unreachable")
)

// APIError is a structured error from the control-plane or broker API.
// Message carries the server's `error` field when present, otherwise a
// synthesized "HTTP <status>" string.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// OpError wraps an underlying error with the tunnel operation that failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
