package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	ErrValidation              = errors.New("validation error")
	ErrInvariantViolation      = errors.New("invariant violation")
	ErrInvalidReferenceProfile = errors.New("invalid reference profile")
	ErrNotFound                = errors.New("not found")
)

// Error codes exposed on the API error channel.
const (
	EINVALID   = "invalid"
	EINVARIANT = "invariant"
	EPROFILE   = "invalid_profile"
	ENOTFOUND  = "not_found"
	EINTERNAL  = "internal"
)

// Error is a structured application error.
type Error struct {
	Code    string // machine-readable code
	Op      string // operation that failed, e.g. "rules.RemoveCondition"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf returns a validation error for op.
func Validationf(op, format string, args ...any) *Error {
	return &Error{Code: EINVALID, Op: op, Message: fmt.Sprintf(format, args...), Err: ErrValidation}
}

// Invariantf returns an invariant-violation error for op.
func Invariantf(op, format string, args ...any) *Error {
	return &Error{Code: EINVARIANT, Op: op, Message: fmt.Sprintf(format, args...), Err: ErrInvariantViolation}
}

// Profilef returns an invalid-reference-profile error for op.
func Profilef(op, format string, args ...any) *Error {
	return &Error{Code: EPROFILE, Op: op, Message: fmt.Sprintf(format, args...), Err: ErrInvalidReferenceProfile}
}

// NotFoundf returns a not-found error for op.
func NotFoundf(op, format string, args ...any) *Error {
	return &Error{Code: ENOTFOUND, Op: op, Message: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

// ErrorCode extracts the code of err, or EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrValidation):
		return EINVALID
	case errors.Is(err, ErrInvariantViolation):
		return EINVARIANT
	case errors.Is(err, ErrInvalidReferenceProfile):
		return EPROFILE
	case errors.Is(err, ErrNotFound):
		return ENOTFOUND
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable part of err.
func ErrorMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
