package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable error category the presentation layer can branch on.
type Kind string

const (
	NotFound             Kind = "not_found"
	Forbidden            Kind = "forbidden"
	InvalidTransition    Kind = "invalid_transition"
	Validation           Kind = "validation_error"
	NotActive            Kind = "not_active"
	RegistrationRequired Kind = "registration_required"
	PasswordRequired     Kind = "password_required"
	IncorrectPassword    Kind = "incorrect_password"
	Conflict             Kind = "conflict"
	Storage              Kind = "storage_error"
)

// Error is a domain error carrying a Kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a domain error wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// StorageErr wraps a persistence failure so it surfaces distinct from domain
// errors.
func StorageErr(op string, cause error) *Error {
	return &Error{Kind: Storage, Message: op, cause: cause}
}

// KindOf returns the Kind of err, or Storage when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Storage
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
