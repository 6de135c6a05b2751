// Package apperror defines the error taxonomy shared by the ledger, the guard
// and the HTTP adapter. Callers match with errors.As.
package apperror

import (
	"fmt"
	"sort"
	"strings"
)

// AuthorizationError is returned when the access policy denies an action.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "not authorized: " + e.Reason
}

// ValidationError is returned for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// ConflictError is returned when an operation violates a state rule, such as
// touching a settled transaction.
type ConflictError struct {
	Rule         string
	Irreversible bool
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Rule
}

// NotFoundError is returned when the addressed record does not exist.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// DependencyError is returned when a delete is blocked by referencing records.
// Counts always holds every blocking kind, never only the first one found.
type DependencyError struct {
	Kind   string
	ID     int64
	Counts map[string]int
}

func (e *DependencyError) Error() string {
	kinds := make([]string, 0, len(e.Counts))
	for k := range e.Counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%d %s", e.Counts[k], k))
	}
	return fmt.Sprintf("cannot delete %s %d: referenced by %s", e.Kind, e.ID, strings.Join(parts, ", "))
}

// Constructors keep call sites short.

func Denied(reason string) error { return &AuthorizationError{Reason: reason} }

func Invalid(field, message string) error { return &ValidationError{Field: field, Message: message} }

func Conflict(rule string, irreversible bool) error {
	return &ConflictError{Rule: rule, Irreversible: irreversible}
}

func NotFound(kind string, id int64) error { return &NotFoundError{Kind: kind, ID: id} }
