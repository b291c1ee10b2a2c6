package dto

import (
	"net/http"

	"github.com/erp/settlement/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller's token does not cover the resource
	ErrCodeForbidden = "ERR_FORBIDDEN"
	// ErrCodeTokenExpired is used when the auth token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodeTokenInvalid is used when the auth token is invalid
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Access state error codes
const (
	// ErrCodeAccessRestricted is used for any access-state rejection
	ErrCodeAccessRestricted = "ERR_ACCESS_RESTRICTED"
	// ErrCodeAccountBlocked is used when a blocked account attempts an operation
	ErrCodeAccountBlocked = "ERR_ACCOUNT_BLOCKED"
	// ErrCodeAccountReadOnly is used when a read-only account attempts a write
	ErrCodeAccountReadOnly = "ERR_ACCOUNT_READ_ONLY"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when a concurrent writer won
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeLockNotAcquired is used when the account lock could not be taken in time
	ErrCodeLockNotAcquired = "ERR_LOCK_NOT_ACQUIRED"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeInvalidPeriod is used for empty or overlapping settlement windows
	ErrCodeInvalidPeriod = "ERR_INVALID_PERIOD"
	// ErrCodeDataInconsistency is used when required upstream data is missing
	ErrCodeDataInconsistency = "ERR_DATA_INCONSISTENCY"
	// ErrCodeNothingToSettle is used when a payout has no money to move
	ErrCodeNothingToSettle = "ERR_NOTHING_TO_SETTLE"
	// ErrCodeDestinationMissing is used when the partner has no payout destination
	ErrCodeDestinationMissing = "ERR_PAYOUT_DESTINATION_MISSING"
)

// Payout provider error codes
const (
	// ErrCodeProvider is used when the provider call failed
	ErrCodeProvider = "ERR_PROVIDER"
	// ErrCodeProviderRejected is used when the provider refused the transfer
	ErrCodeProviderRejected = "ERR_PROVIDER_REJECTED"
	// ErrCodeOutcomeUnknown is used when the transfer may or may not have happened
	ErrCodeOutcomeUnknown = "ERR_PAYOUT_OUTCOME_UNKNOWN"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	// Access state -> 403 Forbidden
	ErrCodeAccessRestricted: http.StatusForbidden,
	ErrCodeAccountBlocked:   http.StatusForbidden,
	ErrCodeAccountReadOnly:  http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeLockNotAcquired:     http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:       http.StatusUnprocessableEntity,
	ErrCodeInvalidPeriod:      http.StatusUnprocessableEntity,
	ErrCodeDataInconsistency:  http.StatusUnprocessableEntity,
	ErrCodeNothingToSettle:    http.StatusUnprocessableEntity,
	ErrCodeDestinationMissing: http.StatusUnprocessableEntity,

	// Provider errors
	ErrCodeProvider:         http.StatusBadGateway,
	ErrCodeProviderRejected: http.StatusBadGateway,
	ErrCodeOutcomeUnknown:   http.StatusAccepted,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
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
	shared.CodeNotFound:           ErrCodeNotFound,
	shared.CodeAlreadyExists:      ErrCodeAlreadyExists,
	shared.CodeInvalidInput:       ErrCodeInvalidInput,
	shared.CodeInvalidPeriod:      ErrCodeInvalidPeriod,
	shared.CodeInvalidState:       ErrCodeInvalidState,
	shared.CodeProviderError:      ErrCodeProvider,
	shared.CodeProviderRejected:   ErrCodeProviderRejected,
	shared.CodeOutcomeUnknown:     ErrCodeOutcomeUnknown,
	shared.CodeConcurrency:        ErrCodeConcurrencyConflict,
	shared.CodeOptimisticLock:     ErrCodeConcurrencyConflict,
	shared.CodeLockNotAcquired:    ErrCodeLockNotAcquired,
	shared.CodeDataInconsistency:  ErrCodeDataInconsistency,
	shared.CodeNothingToSettle:    ErrCodeNothingToSettle,
	shared.CodeDestinationMissing: ErrCodeDestinationMissing,
	shared.CodeUnauthorized:       ErrCodeForbidden,
	shared.CodeAccessRestricted:   ErrCodeAccessRestricted,
	shared.CodeAccountBlocked:     ErrCodeAccountBlocked,
	shared.CodeAccountReadOnly:    ErrCodeAccountReadOnly,
	"VALIDATION_ERROR":            ErrCodeValidation,
	"BAD_REQUEST":                 ErrCodeBadRequest,
	"INTERNAL_ERROR":              ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
