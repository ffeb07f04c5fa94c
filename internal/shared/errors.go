package shared

import (
	"errors"
	"strings"
)

// Error classes. Domain errors wrap one of these so handlers can map them.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCSRFTokenMissing   = errors.New("csrf token missing")
	ErrCSRFTokenMismatch  = errors.New("csrf token mismatch")
)

// DomainError is a message a user may see, tagged with an error class.
type DomainError struct {
	class error
	msg   string
}

func (e *DomainError) Error() string { return e.msg }

func (e *DomainError) Unwrap() error { return e.class }

// Invalid returns a validation-class error.
func Invalid(msg string) error { return &DomainError{class: ErrValidation, msg: msg} }

// Missing returns a not-found-class error.
func Missing(msg string) error { return &DomainError{class: ErrNotFound, msg: msg} }

// Conflicting returns a conflict-class error.
func Conflicting(msg string) error { return &DomainError{class: ErrConflict, msg: msg} }

// UserSafeMessage turns an error into text fit for a flash or form banner.
// Unclassified errors are hidden behind a generic message.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrIdempotencyConflict) {
		return "This form was already submitted."
	}
	var de *DomainError
	if errors.As(err, &de) && de.msg != "" {
		return strings.ToUpper(de.msg[:1]) + de.msg[1:]
	}
	if errors.Is(err, ErrForbidden) {
		return "You are not allowed to do that."
	}
	return "Something went wrong. Please try again."
}
