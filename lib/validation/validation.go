// Package validation provides the field checks used when loading a dbpool
// configuration. Every validator returns nil on success or a *Result naming
// the offending key, so messages can be shown to operators as-is.
package validation

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"
)

// Sentinel errors. Use errors.Is() to check for these conditions.
var (
	// ErrRequired indicates a required field is missing or empty.
	ErrRequired = errors.New("field is required")

	// ErrInvalidFormat indicates a value doesn't match the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrOutOfRange indicates a numeric value is outside the allowed range.
	ErrOutOfRange = errors.New("value out of range")

	// ErrInvalidDuration indicates an invalid duration string.
	ErrInvalidDuration = errors.New("invalid duration")
)

// Result is a failed check on one field.
type Result struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (r *Result) Error() string {
	if r.Field != "" {
		return r.Field + " " + r.Message
	}
	return r.Message
}

// Unwrap returns the underlying error for errors.Is() support.
func (r *Result) Unwrap() error {
	return r.Err
}

// NewResult creates a validation result.
func NewResult(field, message string, err error) *Result {
	return &Result{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Required validates that a string is non-empty.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewResult(field, "is required", ErrRequired)
	}
	return nil
}

// OneOf validates that value is one of allowed.
func OneOf(field, value string, allowed ...string) error {
	if !slices.Contains(allowed, value) {
		return NewResult(field,
			fmt.Sprintf("must be one of %s, got %q", strings.Join(allowed, ", "), value),
			ErrInvalidFormat)
	}
	return nil
}

// AtLeast validates that value >= min.
func AtLeast(field string, value, min int) error {
	if value < min {
		return NewResult(field, fmt.Sprintf("must be at least %d", min), ErrOutOfRange)
	}
	return nil
}

// NonNegative validates that a number is >= 0.
func NonNegative[T int | float64](field string, value T) error {
	if value < 0 {
		return NewResult(field, "must not be negative", ErrOutOfRange)
	}
	return nil
}

// Duration parses a duration string. Empty means "use the default" and
// returns 0; anything else must be a positive duration.
func Duration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, NewResult(field, "is not a valid duration", ErrInvalidDuration)
	}
	if d <= 0 {
		return 0, NewResult(field, "must be positive", ErrOutOfRange)
	}
	return d, nil
}

// HostPort validates a host:port address. The host may be empty.
func HostPort(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(value); err != nil {
		return NewResult(field, "must be in host:port format", ErrInvalidFormat)
	}
	return nil
}

// All runs validators in order and returns the first error.
func All(validators ...func() error) error {
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}
