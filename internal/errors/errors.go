package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an export error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"    // 401
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrRemote         ErrorCode = "REMOTE"          // remote status
	ErrTransport      ErrorCode = "TRANSPORT"       // no response
	ErrWriteFailed    ErrorCode = "WRITE_FAILED"    // local file write
	ErrCancelled      ErrorCode = "CANCELLED"       // 499
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// ExportError represents a structured error with code, status, and details.
// Status is the remote HTTP status for errors raised by the activity source,
// and a nominal status otherwise.
type ExportError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ExportError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid input.
func NewInvalidRequest(msg string) *ExportError {
	return &ExportError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthorized creates a 401 error for rejected or missing credentials.
func NewUnauthorized(msg string) *ExportError {
	return &ExportError{
		Code:    ErrUnauthorized,
		Status:  401,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing remote resource.
func NewNotFound(resource string) *ExportError {
	return &ExportError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", resource),
		Details: map[string]any{"resource": resource},
	}
}

// NewRemote creates an error for a non-success response from the activity source.
func NewRemote(status int, op, msg string) *ExportError {
	return &ExportError{
		Code:    ErrRemote,
		Status:  status,
		Message: fmt.Sprintf("%s: %s", op, msg),
		Details: map[string]any{"operation": op, "remote_message": msg},
	}
}

// NewTransport creates an error for a request that never produced a response.
func NewTransport(op string, err error) *ExportError {
	return &ExportError{
		Code:    ErrTransport,
		Status:  0,
		Message: fmt.Sprintf("%s: %v", op, err),
		Details: map[string]any{"operation": op},
		Err:     err,
	}
}

// NewWriteFailed creates an error for a track file that could not be written.
func NewWriteFailed(path string, err error) *ExportError {
	return &ExportError{
		Code:    ErrWriteFailed,
		Status:  500,
		Message: fmt.Sprintf("failed to write %s: %v", path, err),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewCancelled creates an error for an operation stopped by context cancellation.
func NewCancelled(op string) *ExportError {
	return &ExportError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ExportError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ExportError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is an ExportError with the given code.
func Is(err error, code ErrorCode) bool {
	var eErr *ExportError
	if stderrors.As(err, &eErr) {
		return eErr.Code == code
	}
	return false
}

// IsFatal reports whether err must abort an export run.
// Missing stream data and per-file write failures are recoverable; everything else is not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !Is(err, ErrNotFound) && !Is(err, ErrWriteFailed)
}
