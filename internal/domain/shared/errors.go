// Package shared contains the error kinds and error categories used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
	"strings"
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
	ErrLimitReached = errors.New("limit reached")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// External service errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "capacity", "task", "syncqueue"
	Op      string // Operation that failed, e.g., "Update", "Skip"
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

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORIES
// ══════════════════════════════════════════════════════════════════════════════

// Category is the coarse class used to decide how a failure is handled.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryDatabase       Category = "database"
	CategoryUnknown        Category = "unknown"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryNetwork, CategoryValidation, CategoryAuthentication, CategoryDatabase, CategoryUnknown:
		return true
	}
	return false
}

// Severity controls whether a failure is surfaced to the student.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string
	Message string
}

func (f FieldError) String() string {
	return f.Field + ": " + f.Message
}

// CategorizedError is an error tagged with its category where it was raised.
// Classification prefers this tag over message inspection.
type CategorizedError struct {
	Category Category
	Op       string
	Fields   []FieldError
	Err      error
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Category))
	if e.Op != "" {
		b.WriteString(" error in ")
		b.WriteString(e.Op)
	} else {
		b.WriteString(" error")
	}
	if len(e.Fields) > 0 {
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.String()
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error { return e.Err }

// Is makes validation-tagged errors match ErrValidation.
func (e *CategorizedError) Is(target error) bool {
	return e.Category == CategoryValidation && target == ErrValidation
}

// FirstFieldMessage returns the message of the first field error, if any.
func (e *CategorizedError) FirstFieldMessage() (string, bool) {
	if len(e.Fields) == 0 {
		return "", false
	}
	return e.Fields[0].Message, true
}

// Categorize tags err with a category.
func Categorize(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &CategorizedError{Category: category, Op: op, Err: err}
}

// NetworkError tags err as a connectivity failure.
func NetworkError(op string, err error) error {
	return Categorize(CategoryNetwork, op, err)
}

// DatabaseError tags err as a backend-side failure.
func DatabaseError(op string, err error) error {
	return Categorize(CategoryDatabase, op, err)
}

// AuthError tags err as an authentication failure.
func AuthError(op string, err error) error {
	return Categorize(CategoryAuthentication, op, err)
}

// ValidationError builds a validation error from field errors.
func ValidationError(op string, fields ...FieldError) error {
	return &CategorizedError{Category: CategoryValidation, Op: op, Fields: fields}
}

// InvalidField is shorthand for a single-field validation error.
func InvalidField(op, field, message string) error {
	return ValidationError(op, FieldError{Field: field, Message: message})
}

// CategoryOf returns the tag of the first CategorizedError in err's chain.
func CategoryOf(err error) (Category, bool) {
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category, true
	}
	return "", false
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// Capacity domain errors
var (
	ErrCapacityNotFound = NewDomainError("capacity", "Find", ErrNotFound, "capacity not configured")
	ErrTaskLimitReached = NewDomainError("capacity", "AddTask", ErrLimitReached, "daily task limit reached")
	ErrInvalidOverride  = NewDomainError("capacity", "RecordOverride", ErrInvalidInput, "unknown override kind")
)

// Task domain errors
var (
	ErrTaskNotFound    = NewDomainError("task", "Find", ErrNotFound, "task not found")
	ErrInvalidSkip     = NewDomainError("task", "Skip", ErrInvalidInput, "unknown skip reason")
	ErrInvalidDuration = NewDomainError("focus", "Record", ErrValueOutOfRange, "focus duration out of range")
)

// Profile and plan errors
var (
	ErrProfileNotFound = NewDomainError("profile", "Find", ErrNotFound, "profile not found")
	ErrPlanNotFound    = NewDomainError("plan", "Lookup", ErrNotFound, "plan not found")
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

// IsLimitReached checks if the error reports an exhausted limit.
func IsLimitReached(err error) bool {
	return errors.Is(err, ErrLimitReached)
}
