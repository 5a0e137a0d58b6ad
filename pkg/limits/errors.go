package limits

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStoreUnavailable is returned by storage backends when the shared
	// store cannot be reached or returns an error.
	ErrStoreUnavailable = errors.New("shared store unavailable")

	// ErrThrottleTimeout is returned when an upstream permit could not be
	// acquired before the caller's deadline.
	ErrThrottleTimeout = errors.New("throttle timeout")

	// ErrInvalidTier is returned by admin operations for an empty tier.
	ErrInvalidTier = errors.New("invalid tier")

	// ErrInvalidIdentity is returned by admin operations for an empty identity.
	ErrInvalidIdentity = errors.New("invalid identity")
)

// ThrottleTimeoutError carries the context of a permit that was not granted
// in time. It matches ErrThrottleTimeout with errors.Is.
type ThrottleTimeoutError struct {
	// Name is the throttle that timed out.
	Name string

	// Waited is how long the caller waited before giving up.
	Waited time.Duration
}

// Error implements the error interface.
func (e *ThrottleTimeoutError) Error() string {
	return fmt.Sprintf("throttle %q: no permit after %s", e.Name, e.Waited.Round(time.Millisecond))
}

// Unwrap returns ErrThrottleTimeout.
func (e *ThrottleTimeoutError) Unwrap() error {
	return ErrThrottleTimeout
}

// StoreError wraps a backend failure with the operation and key involved.
// It matches ErrStoreUnavailable with errors.Is.
type StoreError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}
