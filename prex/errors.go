package prex

import (
	"errors"
	"fmt"
)

// Error represents a printer client error
type Error struct {
	// Type is the error type
	Type ErrorType

	// Message is a human-readable error message
	Message string

	// Path is the remote path that caused the error (if applicable)
	Path string

	// Cause is the underlying error (if applicable)
	Cause error
}

// ErrorType categorizes printer client errors
type ErrorType int

const (
	// ErrTransport indicates the connection to the device broke
	ErrTransport ErrorType = iota

	// ErrProtocol indicates a malformed or unexpected device reply
	ErrProtocol

	// ErrDevice indicates the device reported an error for an operation
	ErrDevice

	// ErrNotFound indicates the remote path does not exist
	ErrNotFound

	// ErrCancelled indicates the operation was cancelled
	ErrCancelled

	// ErrUnsupported indicates the device or language lacks the feature
	ErrUnsupported
)

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("prex %s: %s (path: %s)", e.Type, e.Message, e.Path)
	}
	return fmt.Sprintf("prex %s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (t ErrorType) String() string {
	switch t {
	case ErrTransport:
		return "transport error"
	case ErrProtocol:
		return "protocol error"
	case ErrDevice:
		return "device error"
	case ErrNotFound:
		return "not found"
	case ErrCancelled:
		return "cancelled"
	case ErrUnsupported:
		return "unsupported"
	default:
		return "unknown error"
	}
}

// NewError creates a new printer client error
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// NewPathError creates a new printer client error with path information
func NewPathError(errType ErrorType, message, path string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Path:    path,
	}
}

// WrapError creates a new printer client error wrapping an underlying cause
func WrapError(errType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// IsTransport checks if an error is a transport error
func IsTransport(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrTransport
	}
	return false
}

// IsNotFound checks if an error indicates a missing remote path
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrNotFound
	}
	return false
}

// IsCancelled checks if an error indicates cancellation
func IsCancelled(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrCancelled
	}
	return false
}

// IsUnsupported checks if an error indicates a missing device feature
func IsUnsupported(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrUnsupported
	}
	return false
}
