// Package apperr defines the client-facing error taxonomy of the service.
//
// Errors are built with an explicit Kind and message at the point of detection
// and travel unchanged to the HTTP boundary. Anything that is not an *Error is
// treated as KindInternal and its message is never shown to the caller.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindConflict
)

// GenericMessage replaces the message of unclassified errors.
const GenericMessage = "Something went wrong!"

// Error is a classified error carrying a user-facing message.
type Error struct {
	// Err is the underlying cause (for logging, not exposed to users).
	Err     error
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps a Kind to its HTTP status.
func (k Kind) StatusCode() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// New returns an error of kind whose message is shown to clients.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func BadRequest(message string) *Error {
	return New(KindBadRequest, message)
}

// Unauthorized always carries the same message so callers cannot tell
// which step of authentication failed.
func Unauthorized() *Error {
	return New(KindUnauthorized, "Unauthorized")
}

// NotFound always carries the same message so a private item is
// indistinguishable from a missing one.
func NotFound() *Error {
	return New(KindNotFound, "Not found")
}

func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Internal wraps cause with a message that is safe to show.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

// As extracts the *Error from err, or nil if err is unclassified.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// KindOf returns the Kind of err; unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if appErr := As(err); appErr != nil {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is classified with kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the message that may be shown to a caller.
func PublicMessage(err error) string {
	if appErr := As(err); appErr != nil && appErr.Message != "" {
		return appErr.Message
	}
	return GenericMessage
}
