// Package shared contains common domain types, errors and events that are used
// across all domain packages. This package has zero external dependencies.
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
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Storage and external service errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCatalogUnavailable = errors.New("content catalog unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "attempt", "progress", "stats"
	Op      string // Operation that failed, e.g. "Append", "Recompute"
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

// Is implements errors.Is() matching.
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

// Attempt domain errors
var (
	ErrInvalidScore        = NewDomainError("attempt", "Validate", ErrValueOutOfRange, "score must be between 0 and 100")
	ErrInvalidActivityType = NewDomainError("attempt", "Validate", ErrInvalidInput, "unknown activity type")
	ErrInvalidBaseXP       = NewDomainError("attempt", "Validate", ErrNegativeValue, "base XP must be non-negative")
	ErrAttemptNotFound     = NewDomainError("attempt", "Find", ErrNotFound, "attempt not found")
)

// Progress domain errors
var (
	ErrProgressNotFound   = NewDomainError("progress", "Find", ErrNotFound, "progress record not found")
	ErrCompletionReverted = NewDomainError("progress", "Mark", ErrInvalidState, "completion cannot revert to incomplete")
	ErrStaleProgress      = NewDomainError("progress", "Save", ErrConcurrentModification, "progress row was modified concurrently")
)

// Stats domain errors
var (
	ErrStatsNotFound  = NewDomainError("stats", "Find", ErrNotFound, "user stats not found")
	ErrNegativeAward  = NewDomainError("stats", "ApplyXP", ErrNegativeValue, "XP award must be non-negative")
	ErrStaleUserStats = NewDomainError("stats", "Save", ErrConcurrentModification, "stats row was modified concurrently")
)

// Catalog errors
var (
	ErrCatalogQueryFailed = NewDomainError("catalog", "GetTotals", ErrCatalogUnavailable, "failed to read canonical totals")
)

// Notification errors
var (
	ErrNotificationFailed = NewDomainError("notification", "Send", ErrStorageUnavailable, "failed to deliver notification")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error. Validation failures
// are caller mistakes and must never be retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsCatalogUnavailable checks if the error means the content catalog could not
// be reached. The whole recomputation fails atomically in that case.
func IsCatalogUnavailable(err error) bool {
	return errors.Is(err, ErrCatalogUnavailable)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrTimeout)
}
