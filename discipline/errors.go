/*
errors.go - Centralized error types for the escalation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The store and workflow packages wrap these with additional context.

ERROR CATEGORIES:
  1. Input errors - Missing/invalid identifiers, rejected before evaluation
  2. Collaborator errors - Store unreachable or query failed, propagated
     unchanged with no partial result
  3. Conflict errors - Duplicate recommendation/report, already actioned

  Ambiguous warning sets are NOT errors. They produce a CaseReview
  recommendation so the caller can route them to a human.

SEE ALSO:
  - resolver.go: Wraps store failures in StoreError
  - store/sqlite/sqlite.go: Maps unique-constraint violations to sentinels
*/
package discipline

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned when an evaluation or write is missing a
	// required field or carries an unknown enum value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable marks failures reading or writing the record store.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrDuplicateRecommendation is returned when a recommendation for the same
	// agent, metric and week range was already persisted.
	ErrDuplicateRecommendation = errors.New("duplicate recommendation for trigger")

	// ErrDuplicateReport is returned when the same leadership report was
	// already persisted for the leader, agent, kind and week range.
	ErrDuplicateReport = errors.New("duplicate leadership report")

	// ErrAlreadyActioned is returned on a second MarkActioned.
	ErrAlreadyActioned = errors.New("recommendation already actioned")

	// ErrRecommendationNotFound is returned when a referenced recommendation doesn't exist.
	ErrRecommendationNotFound = errors.New("recommendation not found")

	// ErrAgentNotFound is returned when a referenced agent doesn't exist.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrNoLeader is returned when leadership evaluation is requested for an
	// agent with no assigned leader.
	ErrNoLeader = errors.New("agent has no assigned leader")

	// ErrInvalidPolicy is returned when a policy configuration is malformed.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InputError names the offending field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// StoreError wraps a record-store failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStoreUnavailable) match any store failure.
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// PolicyError describes a rejected policy field.
type PolicyError struct {
	Field  string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("invalid policy %s: %s", e.Field, e.Reason)
}

func (e *PolicyError) Unwrap() error { return ErrInvalidPolicy }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrNoLeader)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecommendationNotFound) ||
		errors.Is(err, ErrAgentNotFound)
}

// IsConflict returns true if the write collided with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateRecommendation) ||
		errors.Is(err, ErrDuplicateReport) ||
		errors.Is(err, ErrAlreadyActioned)
}
