package types

import "fmt"

// ErrorCode represents a unified error code across the harness.
type ErrorCode string

// Model backend error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"
	ErrBackendNotFound    ErrorCode = "BACKEND_NOT_FOUND"
	ErrModelOverloaded    ErrorCode = "MODEL_OVERLOADED"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrEmptyContent       ErrorCode = "EMPTY_CONTENT"
	ErrContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	ErrInvalidTokenBudget ErrorCode = "INVALID_TOKEN_BUDGET"
)

// Benchmark error codes
const (
	ErrAllParticipantsFailed ErrorCode = "ALL_PARTICIPANTS_FAILED"
	ErrEvalInconclusive      ErrorCode = "EVAL_INCONCLUSIVE"
	ErrUnknownTopology       ErrorCode = "UNKNOWN_TOPOLOGY"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Backend   string    `json:"backend,omitempty"`
	CallSite  string    `json:"call_site,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithBackend sets the backend name.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// WithCallSite records the call site the error originated from.
// Context-overflow errors must always carry the offending call site.
func (e *Error) WithCallSite(site string) *Error {
	e.CallSite = site
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
