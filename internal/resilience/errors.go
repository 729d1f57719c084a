// Package resilience provides the shared retry policy and the error kinds
// that let callers choose retry-vs-abort at the type level.
package resilience

import (
	"errors"
	"net"
	"syscall"
)

// TransientError wraps a failure that is safe to retry (429, 5xx, network
// timeouts). Provider clients wrap errors in this type so the retry policy
// never has to string-match messages.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// ValidationError wraps a caller error: malformed input, an unsupported
// file extension, missing credentials. Never retried.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError marks an error as a non-retryable caller error.
func NewValidationError(err error) *ValidationError {
	return &ValidationError{Err: err}
}

// IsValidation reports whether err carries a ValidationError anywhere in
// its chain.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err is safe to retry: an explicit
// TransientError, or a network-level timeout/reset. Validation errors are
// never transient, regardless of what they wrap.
func IsTransient(err error) bool {
	if err == nil || IsValidation(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED)
}

// IsTransientHTTPStatus reports whether an HTTP status code indicates a
// server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
