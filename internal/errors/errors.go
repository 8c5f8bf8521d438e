package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/url"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrTypeTimeout represents a request that exceeded its per-call deadline
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeNetwork represents transport errors and non-success HTTP statuses
	ErrTypeNetwork ErrorType = "network"
	// ErrTypeNotFound represents a missing upstream resource (no link, no cover)
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeMetadata represents a failure while writing tags into an audio file
	ErrTypeMetadata ErrorType = "metadata"
	// ErrTypeUnknown represents unknown errors
	ErrTypeUnknown ErrorType = "unknown"
)

// AppError represents an application error with context
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeTimeout,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeNetwork,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewStatusError creates a network error for a non-success HTTP status
func NewStatusError(statusCode int) *AppError {
	return &AppError{
		Type:       ErrTypeNetwork,
		Message:    fmt.Sprintf("unexpected HTTP status %d", statusCode),
		StatusCode: statusCode,
		Retryable:  true,
	}
}

// NewNotFoundError creates a new not found error.
// Retrying the same request may still succeed upstream (links expire and
// reappear), so these are marked retryable.
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:      ErrTypeNotFound,
		Message:   message,
		Retryable: true,
	}
}

// NewMetadataError creates a new metadata error
func NewMetadataError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeMetadata,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewUnknownError creates a new unclassified error
func NewUnknownError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeUnknown,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// Classify converts an arbitrary error into an AppError. Existing AppErrors
// anywhere in the chain are returned as they are.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("request timed out", err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewTimeoutError("request timed out", err)
		}
		return NewNetworkError("network error", err)
	}

	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return NewNetworkError("network error", err)
	}

	return NewUnknownError("unexpected error", err)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetErrorType returns the error type from an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrTypeUnknown
}

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool {
	return GetErrorType(err) == ErrTypeTimeout
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	return GetErrorType(err) == ErrTypeNetwork
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrTypeNotFound
}
