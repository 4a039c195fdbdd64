package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrStateConflict     = errors.New("state conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientAsset = errors.New("insufficient asset")

	// ErrUnauthorized is a StateConflict: the caller does not own the order.
	ErrUnauthorized = fmt.Errorf("%w: caller is not the order owner", ErrStateConflict)
)

// Validation wraps ErrValidation with the offending field.
func Validation(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}

// IsRejection reports whether err is a business rejection that must never be retried.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientAsset)
}
