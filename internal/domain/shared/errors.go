// Package shared contains common domain types, errors, and events that are
// used across all domain packages. This package has zero external dependencies.
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
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrExpired         = errors.New("expired")

	// Protocol errors (inbound message parsing/dispatch)
	ErrProtocol       = errors.New("protocol error")
	ErrUnknownMessage = errors.New("unknown message type")

	// Graph errors (course load time)
	ErrGraph             = errors.New("skill graph error")
	ErrGraphCycle        = errors.New("prerequisite cycle detected")
	ErrDanglingReference = errors.New("dangling reference in skill graph")

	// Persistence / external errors
	ErrPersistence            = errors.New("persistence error")
	ErrServiceUnavailable     = errors.New("service unavailable")
	ErrTimeout                = errors.New("operation timeout")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "skillgraph", "mastery", "review", "session"
	Op      string // Operation that failed, e.g., "Load", "UpdateMastery"
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

// Skill graph domain errors
var (
	ErrKCNotFound     = NewDomainError("skillgraph", "GetKC", ErrNotFound, "knowledge component not found")
	ErrLONotFound     = NewDomainError("skillgraph", "GetLO", ErrNotFound, "learning objective not found")
	ErrALONotFound    = NewDomainError("skillgraph", "GetALO", ErrNotFound, "learning object not found")
	ErrCourseNotFound = NewDomainError("skillgraph", "Load", ErrNotFound, "course not found")
	ErrCyclicGraph    = NewDomainError("skillgraph", "Build", ErrGraphCycle, "prerequisite edges form a cycle")
	ErrDanglingEdge   = NewDomainError("skillgraph", "Build", ErrDanglingReference, "edge references unknown knowledge component")
)

// Mastery domain errors
var (
	ErrInvalidDifficulty = NewDomainError("mastery", "Validate", ErrValueOutOfRange, "difficulty outside configured range")
	ErrInvalidTheta      = NewDomainError("mastery", "Validate", ErrValueOutOfRange, "theta must be within [0,1]")
)

// Session domain errors
var (
	ErrSessionNotFound   = NewDomainError("session", "Find", ErrNotFound, "session not found")
	ErrSessionEnded      = NewDomainError("session", "Transition", ErrInvalidState, "session already ended")
	ErrSignalMismatch    = NewDomainError("session", "OnSignal", ErrInvalidState, "signal does not match delivered learning object")
	ErrNoDeliveredALO    = NewDomainError("session", "OnSignal", ErrInvalidState, "no learning object is being delivered")
	ErrEvidenceMismatch  = NewDomainError("session", "OnSubmitEvidence", ErrInvalidState, "evidence does not match delivered learning object")
	ErrEvidenceNotGraded = NewDomainError("session", "OnSubmitEvidence", ErrInvalidInput, "evidence allowed only for exercise and project objects")
	ErrEvidenceDisabled  = NewDomainError("session", "OnSubmitEvidence", ErrInvalidInput, "evidence grading is disabled for this user")
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
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsState checks if the error is a state machine violation.
func IsState(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrStateTransition)
}

// IsGraph checks if the error comes from skill graph validation.
func IsGraph(err error) bool {
	return errors.Is(err, ErrGraph) ||
		errors.Is(err, ErrGraphCycle) ||
		errors.Is(err, ErrDanglingReference)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
