// Package shared contains the error vocabulary used by every domain package
// of the progress hub. It has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// External dependency errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "learner", "level", "phase", "progress"
	Op      string // Operation that failed, e.g. "ListPauseIntervals"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Learner domain errors
var (
	ErrLearnerNotFound    = NewDomainError("learner", "Find", ErrNotFound, "learner not found")
	ErrLearnerIdentity    = NewDomainError("learner", "Validate", ErrInvalidInput, "learner has neither id nor contact key")
	ErrPauseLedgerFailure = NewDomainError("learner", "ListPauseIntervals", ErrServiceUnavailable, "pause ledger unavailable")
)

// Level domain errors
var (
	ErrOverrideLedgerFailure = NewDomainError("level", "GetActiveOverride", ErrServiceUnavailable, "override ledger unavailable")
	ErrUnknownOperator       = NewDomainError("level", "ApplyOverride", ErrInvalidFormat, "unknown override operator")
)

// Phase domain errors
var (
	ErrPhaseConfigUnavailable = NewDomainError("phase", "GetRawPhaseConfig", ErrServiceUnavailable, "phase config unavailable")
	ErrPhaseConfigInvalid     = NewDomainError("phase", "Validate", ErrValidation, "phase config is invalid")
)

// Progress domain errors
var (
	ErrSnapshotNotFound = NewDomainError("progress", "FindSnapshot", ErrNotFound, "snapshot not found")
	ErrSnapshotWrite    = NewDomainError("progress", "WriteSnapshot", ErrServiceUnavailable, "snapshot write failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
