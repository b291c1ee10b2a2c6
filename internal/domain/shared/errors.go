package shared

import "errors"

// Error codes shared by every bounded context of the engine.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidPeriod      = "INVALID_PERIOD"
	CodeInvalidState       = "INVALID_STATE"
	CodeProviderError      = "PROVIDER_ERROR"
	CodeOutcomeUnknown     = "PAYOUT_OUTCOME_UNKNOWN"
	CodeConcurrency        = "CONCURRENCY_CONFLICT"
	CodeDataInconsistency  = "DATA_INCONSISTENCY"
	CodeOptimisticLock     = "OPTIMISTIC_LOCK_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeAccessRestricted   = "ACCESS_RESTRICTED"
	CodeNothingToSettle    = "NOTHING_TO_SETTLE"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeLockNotAcquired    = "LOCK_NOT_ACQUIRED"
	CodeAccountBlocked     = "ACCOUNT_BLOCKED"
	CodeAccountReadOnly    = "ACCOUNT_READ_ONLY"
	CodeProviderRejected   = "PROVIDER_REJECTED"
	CodeDestinationMissing = "PAYOUT_DESTINATION_MISSING"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches any DomainError carrying the same code, so callers can write
// errors.Is(err, shared.ErrInvalidState) regardless of the message.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if !errors.As(target, &de) {
		return false
	}
	return de.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error that keeps cause in the chain
func WrapDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// ErrorCode extracts the DomainError code from err, or "" when err carries none
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidPeriod       = NewDomainError(CodeInvalidPeriod, "Invalid settlement period")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrProvider            = NewDomainError(CodeProviderError, "Payout provider error")
	ErrOutcomeUnknown      = NewDomainError(CodeOutcomeUnknown, "Payout outcome is unknown, reconciliation pending")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrency, "Resource was modified by another process")
	ErrDataInconsistency   = NewDomainError(CodeDataInconsistency, "Required data is missing or inconsistent")
	ErrUnauthorized        = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
)
