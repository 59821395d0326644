package orchtypes

import (
	"fmt"
	"net/http"
)

// ErrorKind is the closed set of failure categories every component
// surfaces; the Facade maps each kind onto an HTTP status (spec §7).
type ErrorKind string

const (
	ErrInvalidInput       ErrorKind = "invalid_input"
	ErrUnauthorized       ErrorKind = "unauthorized"
	ErrForbidden          ErrorKind = "forbidden"
	ErrNotFound           ErrorKind = "not_found"
	ErrRateLimited        ErrorKind = "rate_limited"
	ErrCapacityExhausted  ErrorKind = "capacity_exhausted"
	ErrInsufficientFunds  ErrorKind = "insufficient_funds"
	ErrCostCapExceeded    ErrorKind = "cost_cap_exceeded"
	ErrDeadlineExceeded   ErrorKind = "deadline_exceeded"
	ErrBusy               ErrorKind = "busy"
	ErrDependencyFailed   ErrorKind = "dependency_failed"
	ErrInternal           ErrorKind = "internal"
)

// HTTPStatus maps an ErrorKind to its spec-mandated HTTP status code.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrInvalidInput, ErrCostCapExceeded:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden, ErrInsufficientFunds:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrCapacityExhausted:
		return http.StatusServiceUnavailable
	case ErrBusy:
		return http.StatusBadRequest
	case ErrDeadlineExceeded:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// APIError is the single structured error type threaded through every
// component. RetryAfter is only meaningful for ErrCapacityExhausted.
type APIError struct {
	Kind       ErrorKind
	Message    string
	RetryAfter int // seconds, 0 means unset
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewAPIError builds an APIError with a formatted message.
func NewAPIError(kind ErrorKind, format string, args ...interface{}) *APIError {
	return &APIError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsAPIError unwraps err into an *APIError, synthesizing an Internal
// kind for anything that isn't already one (teacher idiom: never let an
// unclassified error escape to the HTTP layer untagged).
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*APIError); ok {
		return ae
	}
	return &APIError{Kind: ErrInternal, Message: err.Error()}
}
