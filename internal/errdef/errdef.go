// Package errdef defines the error kinds surfaced to API clients.
// Each kind wraps a formatted error so callers can match with the Is* helpers
// regardless of how many times the error was wrapped on the way up.
package errdef

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error code sent to clients.
type Kind string

const (
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindForbidden        Kind = "FORBIDDEN"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindCapacityExceeded Kind = "CAPACITY_EXCEEDED"
	KindValidationFailed Kind = "VALIDATION_FAILED"
	KindInternal         Kind = "INTERNAL"
)

func NewUnauthenticated(format string, a ...any) error {
	return unauthenticated{fmt.Errorf(format, a...)}
}

type unauthenticated struct{ error }

func (e unauthenticated) Unwrap() error { return e.error }

func IsUnauthenticated(err error) bool {
	var e unauthenticated
	return errors.As(err, &e)
}

func NewForbidden(format string, a ...any) error {
	return forbidden{fmt.Errorf(format, a...)}
}

type forbidden struct{ error }

func (e forbidden) Unwrap() error { return e.error }

func IsForbidden(err error) bool {
	var e forbidden
	return errors.As(err, &e)
}

// NewNotFound creates an error representing a resource that could not be found.
func NewNotFound(format string, a ...any) error {
	return notFound{fmt.Errorf(format, a...)}
}

type notFound struct{ error }

func (e notFound) Unwrap() error { return e.error }

// IsNotFound returns true if err is an error representing a resource that could not be found and false otherwise.
func IsNotFound(err error) bool {
	var e notFound
	return errors.As(err, &e)
}

// NewConflict creates an error representing a conflicting state, e.g. a duplicate enrollment.
func NewConflict(format string, a ...any) error {
	return conflict{fmt.Errorf(format, a...)}
}

type conflict struct{ error }

func (e conflict) Unwrap() error { return e.error }

// IsConflict returns true if err is an error representing a conflict and false otherwise.
func IsConflict(err error) bool {
	var e conflict
	return errors.As(err, &e)
}

// NewCapacityExceeded creates an error for an approval attempted on a full event.
func NewCapacityExceeded(format string, a ...any) error {
	return capacityExceeded{fmt.Errorf(format, a...)}
}

type capacityExceeded struct{ error }

func (e capacityExceeded) Unwrap() error { return e.error }

func IsCapacityExceeded(err error) bool {
	var e capacityExceeded
	return errors.As(err, &e)
}

func NewValidationFailed(format string, a ...any) error {
	return validationFailed{fmt.Errorf(format, a...)}
}

type validationFailed struct{ error }

func (e validationFailed) Unwrap() error { return e.error }

func IsValidationFailed(err error) bool {
	var e validationFailed
	return errors.As(err, &e)
}

// KindOf returns the client-facing kind of err. Anything not created by this
// package is reported as KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case IsUnauthenticated(err):
		return KindUnauthenticated
	case IsForbidden(err):
		return KindForbidden
	case IsNotFound(err):
		return KindNotFound
	case IsCapacityExceeded(err):
		return KindCapacityExceeded
	case IsConflict(err):
		return KindConflict
	case IsValidationFailed(err):
		return KindValidationFailed
	default:
		return KindInternal
	}
}
