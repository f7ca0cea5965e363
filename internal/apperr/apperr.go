// Package apperr defines the error kinds surfaced by the web application.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the client.
type Kind int

const (
	Internal Kind = iota
	BadRequest
	Unauthorized
	NotFound
	Conflict
	// Referential is a broken foreign-key reference that was not
	// translated into a more specific kind by the caller.
	Referential
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Referential:
		return "referential"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case BadRequest, Referential:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Message is safe to return to clients;
// Err carries the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind, so callers can write
// errors.Is(err, apperr.E(apperr.NotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// E builds an error of the given kind with a client-facing message.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap attaches kind and message to err.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Errorf builds an error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// PublicMessage returns the message a client may see for err. Errors
// that were never classified get a generic message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}

// Convenience sentinels for errors.Is checks.
var (
	ErrBadRequest   = E(BadRequest, "")
	ErrUnauthorized = E(Unauthorized, "")
	ErrNotFound     = E(NotFound, "")
	ErrConflict     = E(Conflict, "")
)
