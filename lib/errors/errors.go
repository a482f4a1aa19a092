// Package errors provides the structured error taxonomy for dbpool.
//
// Every failure the pool can report is one of a small set of kinds:
// configuration, initialization, new-connection, exhausted, already-released,
// invalid-argument, release, and released-use. Each kind is a sentinel error
// with a numeric code so the web surface and CLI can categorize failures
// without string matching.
//
// This package provides:
//   - Sentinel errors for every failure kind
//   - Error codes for response categorization
//   - Error wrapping that keeps both the kind and the driver cause in the chain
//   - Safe error messages that don't leak driver details
package errors

import (
	"errors"
	"fmt"
)

// Error codes for categorizing errors.
const (
	CodeInternal      = 1000 // Internal error
	CodeInvalidInput  = 1001 // Invalid argument
	CodeConfiguration = 1002 // Invalid pool configuration
	CodeState         = 1003 // Invalid state

	// Pool codes
	CodeInitialization  = 1100 // Initial fill failed
	CodeNewConnection   = 1101 // Factory failed to open a resource
	CodeExhausted       = 1102 // No resource available
	CodeAlreadyReleased = 1103 // Handle released twice
	CodeRelease         = 1104 // Validation or replacement failed on release
	CodeReleasedUse     = 1105 // Handle used after release
	CodeClosed          = 1106 // Pool closed
	CodeUnavailable     = 1107 // Backend rejected by circuit breaker
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates a configuration error.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidState indicates an invalid state transition.
	ErrInvalidState = errors.New("invalid state")

	// ErrClosed indicates a resource is closed.
	ErrClosed = errors.New("closed")

	// ErrUnavailable indicates a backend is unavailable.
	ErrUnavailable = errors.New("service unavailable")

	// ErrInternal indicates an internal error.
	ErrInternal = errors.New("internal error")

	// ErrReleased is the common root of both released-handle kinds.
	ErrReleased = errors.New("connection already released")

	// ErrCircuitOpen indicates the circuit breaker is open.
	ErrCircuitOpen = fmt.Errorf("circuit breaker is open: %w", ErrUnavailable)
)

// Pool errors
var (
	// ErrInitialization indicates the initial fill to the minimum size failed.
	// A pool that reports it must not be used.
	ErrInitialization = errors.New("pool: initialization failed")

	// ErrNewConnection indicates the factory failed to open a resource while
	// acquiring or refilling.
	ErrNewConnection = errors.New("pool: could not open new connection")

	// ErrPoolExhausted indicates no idle connection is available and the
	// maximum has been reached.
	ErrPoolExhausted = errors.New("pool: out of connections")

	// ErrAlreadyReleased indicates a handle was released a second time.
	ErrAlreadyReleased = fmt.Errorf("pool: release: %w", ErrReleased)

	// ErrReleasedUse indicates an operation on a handle after its release.
	ErrReleasedUse = fmt.Errorf("pool: use after release: %w", ErrReleased)

	// ErrRelease indicates validating or replacing a returned connection failed.
	// The connection is considered lost.
	ErrRelease = errors.New("pool: release failed")

	// ErrPoolClosed indicates the pool has been closed.
	ErrPoolClosed = fmt.Errorf("pool: %w", ErrClosed)

	// ErrPoolConfig indicates invalid pool bounds or a missing factory.
	ErrPoolConfig = fmt.Errorf("pool: %w", ErrConfiguration)

	// ErrInvalidHandle indicates a nil or foreign handle was passed to Release.
	ErrInvalidHandle = fmt.Errorf("pool: handle %w", ErrInvalidInput)
)

// Factory errors
var (
	// ErrUnknownDriver indicates no database/sql driver is registered under a name.
	ErrUnknownDriver = fmt.Errorf("factory: unknown driver: %w", ErrConfiguration)

	// ErrUnsupported indicates a driver connection lacks a required capability.
	ErrUnsupported = errors.New("factory: operation not supported by driver")
)

// Error is a structured error with a code and safe message.
// It implements the error interface and provides methods for
// error handling and response generation.
type Error struct {
	// Code is the error code for categorization
	Code int `json:"code"`
	// Message is a safe, user-facing error message
	Message string `json:"message"`
	// Err is the underlying error (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// SafeMessage returns a client-safe error message without internal details.
func (e *Error) SafeMessage() string {
	return e.Message
}

// New creates a new structured error with the given code and message.
// The message should be safe to return to clients.
func New(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and safe message.
// The original error is preserved for debugging but not exposed to clients.
func Wrap(code int, message string, err error) *Error {
	if err != nil {
		log.WithField("code", code).WithError(err).Debug("wrapping error")
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapKind wraps cause under one of the sentinel kinds. The code is derived
// from kind, and both kind and cause match with errors.Is.
func WrapKind(kind error, message string, cause error) *Error {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
		log.WithField("kind", kind.Error()).WithError(cause).Debug("wrapping error")
	}
	return &Error{
		Code:    codeFromError(kind),
		Message: message,
		Err:     err,
	}
}

// WrapInternal wraps an internal error with a generic message.
// Use this when the original error contains sensitive information.
func WrapInternal(err error) *Error {
	if err != nil {
		log.WithError(err).Debug("wrapping internal error")
	}
	return &Error{
		Code:    CodeInternal,
		Message: "internal error",
		Err:     err,
	}
}

// FromSentinel creates a structured error from a sentinel error.
// It automatically assigns an appropriate error code based on the error type.
func FromSentinel(err error) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    codeFromError(err),
		Message: err.Error(),
		Err:     err,
	}
}

// CodeOf returns the code carried by err. Errors that are not *Error are
// classified by the sentinels in their chain.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return codeFromError(err)
}

// codeFromError maps sentinel errors to error codes.
// The more specific pool kinds are tested before their roots.
func codeFromError(err error) int {
	switch {
	case errors.Is(err, ErrInitialization):
		return CodeInitialization
	case errors.Is(err, ErrNewConnection):
		return CodeNewConnection
	case errors.Is(err, ErrPoolExhausted):
		return CodeExhausted
	case errors.Is(err, ErrAlreadyReleased):
		return CodeAlreadyReleased
	case errors.Is(err, ErrReleasedUse):
		return CodeReleasedUse
	case errors.Is(err, ErrRelease):
		return CodeRelease
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrInvalidState):
		return CodeState
	default:
		return CodeInternal
	}
}

// IsExhausted returns true if the pool had no connection to hand out.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrPoolExhausted)
}

// IsReleased returns true for both the double-release and use-after-release kinds.
func IsReleased(err error) bool {
	return errors.Is(err, ErrReleased)
}

// IsInvalidInput returns true if the error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConfiguration returns true if the error indicates a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsInvalidState returns true if the error indicates an invalid state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsClosed returns true if the error indicates a resource is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsRetryable reports whether a caller may retry the operation later.
// Exhaustion, open failures and an open circuit are transient; everything
// else is a programming or configuration error.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrNewConnection) ||
		errors.Is(err, ErrUnavailable)
}

// Join combines multiple errors into a single error.
// Returns nil if all errors are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target,
// and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
