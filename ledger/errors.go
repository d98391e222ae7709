package ledger

import (
	"errors"
	"fmt"
)

// The five error classes below are the only failures public operations
// surface. All are synchronous and state-preserving: a rejected operation
// leaves the ledger exactly as it was. None are retried by the ledger.

// ValidationError reports malformed input: bad counts, bad time window,
// bad title length, rejected input proofs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// StateError reports an operation that is not valid in the current
// lifecycle state: already responded, already pending, already revealed,
// survey ended.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return "state: " + e.Reason }

// AuthorizationError reports a caller lacking the required relationship to
// the survey or response.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string { return "authorization: " + e.Reason }

// NotFoundError reports an unknown survey or response.
type NotFoundError struct {
	Reason string
}

func (e *NotFoundError) Error() string { return "not found: " + e.Reason }

// CorrelationError reports a callback referencing an unknown or
// already-resolved decryption request. This is the replay-defense path: a
// duplicate callback must never cause a second reveal or touch another
// pair's state.
type CorrelationError struct {
	Reason string
}

func (e *CorrelationError) Error() string { return "correlation: " + e.Reason }

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func statef(format string, args ...any) error {
	return &StateError{Reason: fmt.Sprintf(format, args...)}
}

func authorizationf(format string, args ...any) error {
	return &AuthorizationError{Reason: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &NotFoundError{Reason: fmt.Sprintf(format, args...)}
}

func correlationf(format string, args ...any) error {
	return &CorrelationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsState reports whether err is a StateError.
func IsState(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}

// IsAuthorization reports whether err is an AuthorizationError.
func IsAuthorization(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsCorrelation reports whether err is a CorrelationError.
func IsCorrelation(err error) bool {
	var e *CorrelationError
	return errors.As(err, &e)
}
