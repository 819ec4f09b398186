package relay

import (
	"errors"
	"fmt"
)

// ErrorCode classifies transport failures.
type ErrorCode string

const (
	// ErrCodeConnection indicates a dial, subscription or socket failure.
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"

	// ErrCodeTimeout indicates an operation ran past its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT_ERROR"

	// ErrCodeInvalidInput indicates an event or filter the pool refuses to send.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeConfig indicates a bad relay URL or pool option.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeUnavailable indicates no relay is connected.
	ErrCodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// ErrCodeInternal is the fallback for errors that carry no code.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is a transport error with a code, the relay it concerns and the
// underlying cause.
type Error struct {
	Code    ErrorCode
	Message string
	Relay   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Relay != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Relay)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithRelay records the relay URL the error concerns.
func (e *Error) WithRelay(url string) *Error {
	e.Relay = url
	return e
}

// IsRetryable reports whether the failure is transient.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrCodeConnection, ErrCodeTimeout, ErrCodeUnavailable:
		return true
	default:
		return false
	}
}

func ErrConnection(message string, err error) *Error {
	return NewError(ErrCodeConnection, message, err)
}

func ErrTimeout(message string, err error) *Error {
	return NewError(ErrCodeTimeout, message, err)
}

func ErrInvalidInput(message string, err error) *Error {
	return NewError(ErrCodeInvalidInput, message, err)
}

func ErrConfig(message string, err error) *Error {
	return NewError(ErrCodeConfig, message, err)
}

func ErrUnavailable(message string, err error) *Error {
	return NewError(ErrCodeUnavailable, message, err)
}

// GetErrorCode extracts the code from err, or ErrCodeInternal.
func GetErrorCode(err error) ErrorCode {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether err is a retryable transport error.
func IsRetryable(err error) bool {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.IsRetryable()
	}
	return false
}
