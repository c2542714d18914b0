package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an expected, caller-recoverable failure
type Kind string

const (
	KindValidation       Kind = "ValidationError"
	KindNotFound         Kind = "NotFound"
	KindForbidden        Kind = "Forbidden"
	KindInvalidState     Kind = "InvalidState"
	KindConflict         Kind = "Conflict"
	KindAlreadyDispensed Kind = "AlreadyDispensed"
)

// Error is a domain failure. Anything that is not an *Error is a server fault.
type Error struct {
	Kind    Kind
	Message string

	// VisitID points at the visit that caused a check-in or issue conflict.
	VisitID *uuid.UUID
	// DispensedAt is set when a prescription has already been redeemed.
	DispensedAt *time.Time
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) withVisit(id uuid.UUID) *Error {
	e.VisitID = &id
	return e
}

func (e *Error) withDispensedAt(at *time.Time) *Error {
	if at != nil {
		t := *at
		e.DispensedAt = &t
	}
	return e
}

// IsKind reports whether err is a domain error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// AsError unwraps err into a domain error
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
