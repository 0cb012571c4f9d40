// Package shared holds the error kinds, domain events and identifiers used
// by every domain package.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify failures with errors.Is against these, never
// against message text.
var (
	ErrNotFound     = errors.New("entity not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")
	ErrInvalidID    = errors.New("invalid ID")

	// ErrStateTransition is an action the lifecycle does not allow from the
	// current status.
	ErrStateTransition = errors.New("invalid state transition")

	// ErrEligibilityDenied is a submission outside its window.
	ErrEligibilityDenied = errors.New("eligibility denied")

	// ErrInvariantViolation means stored data broke a lineage rule.
	ErrInvariantViolation = errors.New("invariant violation")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrConcurrentModification is a second writer holding the lineage lock.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrOptimisticLock is a save against a revision that moved on.
	ErrOptimisticLock = errors.New("optimistic lock failure")

	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError carries the failing domain and operation next to its kind.
type DomainError struct {
	Domain  string // thesis, schedule, eligibility, http, auth
	Op      string
	Kind    error
	Message string
	Err     error // cause, optional
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the kind and the cause to errors.Is and errors.As.
func (e *DomainError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewDomainError builds an error of the given kind.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError is NewDomainError with a cause.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Lineage errors.
var (
	ErrThesisNotFound         = NewDomainError("thesis", "Find", ErrNotFound, "thesis not found")
	ErrVersionNotFound        = NewDomainError("thesis", "FindVersion", ErrNotFound, "version not found")
	ErrInvalidVersionSequence = NewDomainError("thesis", "Append", ErrInvariantViolation, "invalid version sequence")
	ErrEmptyFileRef           = NewDomainError("thesis", "Validate", ErrEmptyValue, "file reference is required")
	ErrMissingActor           = NewDomainError("thesis", "Validate", ErrInvalidInput, "acting user is required")
	ErrStaleRevision          = NewDomainError("thesis", "Save", ErrOptimisticLock, "thesis was modified by another writer")
	ErrLineageLocked          = NewDomainError("thesis", "Lock", ErrConcurrentModification, "another operation on this thesis is in progress")
)

// Scheduling event errors.
var (
	ErrNoActiveEvent    = NewDomainError("schedule", "SelectActive", ErrNotFound, "no active scheduling event")
	ErrInvalidCategory  = NewDomainError("schedule", "Validate", ErrInvalidInput, "invalid event category")
	ErrEventUnavailable = NewDomainError("schedule", "List", ErrServiceUnavailable, "scheduling events are unavailable")
)

// IsNotFound reports a missing lineage, version or event.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports input the caller can fix.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrInvalidID)
}

// IsConflict reports a lost race with another writer.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrOptimisticLock)
}

// IsDefect reports errors a well-behaved client cannot trigger. They are
// logged as defects rather than shown as guidance.
func IsDefect(err error) bool {
	return errors.Is(err, ErrStateTransition) ||
		errors.Is(err, ErrInvariantViolation)
}

// IsExternalService reports a failing collaborator such as the calendar.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsRetryable reports failures that may pass on a second try.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrConcurrentModification)
}
