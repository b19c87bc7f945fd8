package faults

import (
	"errors"
	"fmt"
)

// Category sentinels for the launch core. Every engine error wraps exactly one
// of these so callers can classify failures with errors.Is without depending
// on module-specific sentinels.
var (
	ErrValidation          = errors.New("validation failed")
	ErrAuthorization       = errors.New("unauthorized")
	ErrTiming              = errors.New("timing condition not met")
	ErrStateConflict       = errors.New("state conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

func wrap(category error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", category, fmt.Sprintf(format, args...))
}

// Validationf wraps a formatted message with ErrValidation.
func Validationf(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

// Authorizationf wraps a formatted message with ErrAuthorization.
func Authorizationf(format string, args ...any) error {
	return wrap(ErrAuthorization, format, args...)
}

// Timingf wraps a formatted message with ErrTiming.
func Timingf(format string, args ...any) error {
	return wrap(ErrTiming, format, args...)
}

// StateConflictf wraps a formatted message with ErrStateConflict.
func StateConflictf(format string, args ...any) error {
	return wrap(ErrStateConflict, format, args...)
}

// InsufficientBalancef wraps a formatted message with ErrInsufficientBalance.
func InsufficientBalancef(format string, args ...any) error {
	return wrap(ErrInsufficientBalance, format, args...)
}

// Code returns a stable machine-readable code for the error's category, or
// "internal" when the error carries no category.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrTiming):
		return "timing"
	case errors.Is(err, ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "internal"
	}
}
