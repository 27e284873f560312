package chat

import (
	"context"
	"errors"
	"fmt"

	"chat-server/internal/database"
)

// ErrorKind classifies domain errors so the dispatcher can report them
// uniformly to the originating connection.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_error"
	KindNotFound        ErrorKind = "not_found"
	KindForbidden       ErrorKind = "forbidden"
	KindConflict        ErrorKind = "conflict"
	KindNotRecognized   ErrorKind = "connection_not_recognized"
	KindPersistence     ErrorKind = "persistence_error"
	KindPersistenceSlow ErrorKind = "persistence_timeout"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func forbiddenErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func notRecognizedErr() *Error {
	return &Error{Kind: KindNotRecognized, Message: "connection not recognized"}
}

// persistErr maps a store failure onto the taxonomy: missing rows become
// NotFound, exceeded deadlines become a retryable timeout, everything else
// is a generic persistence error.
func persistErr(err error, what string) *Error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: what + " not found", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindPersistenceSlow, Message: what + " timed out, retry later", Err: err}
	default:
		return &Error{Kind: KindPersistence, Message: what + " failed", Err: err}
	}
}

// KindOf extracts the kind from any error in the chain; unclassified errors
// report as persistence failures rather than leaking internals.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}
