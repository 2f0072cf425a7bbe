package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrIdentifierTaken      = errors.New("identifier already assigned")
	ErrRegistrationNotFound = errors.New("no pending registration for this email")
	ErrInvalidOTP           = errors.New("invalid verification code")
	ErrTooManyAttempts      = errors.New("too many attempts")
	ErrResendTooSoon        = errors.New("verification code sent recently")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrNotVerified          = errors.New("email not verified")
	ErrAwaitingApproval     = errors.New("account awaiting approval")
	ErrAccountDeclined      = errors.New("account registration declined")
	ErrAccountBlocked       = errors.New("account blocked")
	ErrForbidden            = errors.New("not allowed")
	ErrInvalidTransition    = errors.New("invalid account status transition")
	ErrHasDependents        = errors.New("user still owns projects")
	ErrValidation           = errors.New("validation failed")
)

// ValidationError names the offending field. It matches ErrValidation with
// errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
