package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransientError represents a failure that a caller could reasonably retry,
// such as a timeout or an upstream 5xx.
type TransientError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	Message    string // caller-facing message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err with a caller-facing message.
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// PermanentError represents a failure that retrying will not fix, such as a
// rejected payment or a 4xx from an upstream service.
type PermanentError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err with a caller-facing message.
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// IsTransient reports whether an error is retry-able.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// FromHTTPStatus classifies an upstream HTTP status into a transient or
// permanent error carrying the status code.
func FromHTTPStatus(status int, message string) error {
	err := fmt.Errorf("http status %d", status)
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return &TransientError{Err: err, StatusCode: status, Message: message}
	}
	return &PermanentError{Err: err, StatusCode: status, Message: message}
}
