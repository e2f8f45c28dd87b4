package dto

import (
	"net/http"

	"github.com/mxi/presale/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation = "ERR_VALIDATION"
)

// Authentication error codes
const (
	ErrCodeUnauthorized     = "ERR_UNAUTHORIZED"
	ErrCodeForbidden        = "ERR_FORBIDDEN"
	ErrCodeTokenExpired     = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid     = "ERR_TOKEN_INVALID"
	ErrCodeTokenRevoked     = "ERR_TOKEN_REVOKED"
	ErrCodeInvalidSignature = "ERR_INVALID_SIGNATURE"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeDuplicateProof      = "ERR_DUPLICATE_PROOF"
)

// Business rule error codes
const (
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeAlreadyTerminal     = "ERR_ALREADY_TERMINAL"
	ErrCodeRequirementsNotMet  = "ERR_REQUIREMENTS_NOT_MET"
	ErrCodeInsufficientBalance = "ERR_INSUFFICIENT_BALANCE"
)

// Input error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Dependency and rate limiting error codes
const (
	ErrCodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"
	ErrCodeRateLimited         = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation: http.StatusBadRequest,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeForbidden:        http.StatusForbidden,
	ErrCodeTokenExpired:     http.StatusUnauthorized,
	ErrCodeTokenInvalid:     http.StatusUnauthorized,
	ErrCodeTokenRevoked:     http.StatusUnauthorized,
	ErrCodeInvalidSignature: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeDuplicateProof:      http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeAlreadyTerminal:     http.StatusConflict,
	ErrCodeRequirementsNotMet:  http.StatusUnprocessableEntity,
	ErrCodeInsufficientBalance: http.StatusUnprocessableEntity,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUpstreamUnavailable: http.StatusBadGateway,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	shared.CodeNotFound:            ErrCodeNotFound,
	shared.CodeAlreadyExists:       ErrCodeAlreadyExists,
	shared.CodeInvalidInput:        ErrCodeInvalidInput,
	shared.CodeInvalidState:        ErrCodeInvalidState,
	shared.CodeConcurrencyConflict: ErrCodeConcurrencyConflict,
	shared.CodeUnauthorized:        ErrCodeUnauthorized,
	shared.CodeForbidden:           ErrCodeForbidden,
	shared.CodeAlreadyTerminal:     ErrCodeAlreadyTerminal,
	shared.CodeDuplicateProof:      ErrCodeDuplicateProof,
	shared.CodeUpstreamUnavailable: ErrCodeUpstreamUnavailable,
	shared.CodeRequirementsNotMet:  ErrCodeRequirementsNotMet,
	shared.CodeInsufficientBalance: ErrCodeInsufficientBalance,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
