package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code, so callers can test
// errors.Is(err, shared.ErrNotFound) against errors built with NewDomainError.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorf creates a domain error with a formatted message
func NewDomainErrorf(code, format string, args ...any) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error carrying the given details
func (e *DomainError) WithDetails(details ...string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: append([]string(nil), details...),
	}
}

// Error codes
const (
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidState        = "INVALID_STATE"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeAlreadyTerminal     = "ALREADY_TERMINAL"
	CodeDuplicateProof      = "DUPLICATE_PROOF"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeRequirementsNotMet  = "REQUIREMENTS_NOT_MET"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
	ErrForbidden           = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrAlreadyTerminal     = NewDomainError(CodeAlreadyTerminal, "Payment reference is already resolved")
	ErrDuplicateProof      = NewDomainError(CodeDuplicateProof, "Transaction hash was already used")
	ErrUpstreamUnavailable = NewDomainError(CodeUpstreamUnavailable, "Payment gateway is unavailable")
	ErrRequirementsNotMet  = NewDomainError(CodeRequirementsNotMet, "Requirements not met")
	ErrInsufficientBalance = NewDomainError(CodeInsufficientBalance, "Insufficient balance available")
)

// CodeOf returns the domain error code carried by err, or "" if none
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
