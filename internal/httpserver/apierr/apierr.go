// Package apierr defines a small typed error taxonomy used to translate
// failures in the listing, cache, and transform layers into HTTP status
// codes without the handler layer re-deriving the mapping.
package apierr

import (
	"errors"
	"fmt"
)

// Error is a typed API error carrying the HTTP status it maps to.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(status int, code, message string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

// BadRequest is category (1) input invalid — no server-side logging.
func BadRequest(message string) *Error {
	return newErr(400, "bad_request", message, nil)
}

// UnsupportedMedia is category (1), the 415 variant for unsupported extensions.
func UnsupportedMedia(message string) *Error {
	return newErr(415, "unsupported_media_type", message, nil)
}

// NotFound is category (2) upstream not found.
func NotFound(message string) *Error {
	return newErr(404, "not_found", message, nil)
}

// Unauthorized is category (3) upstream auth.
func Unauthorized(message string) *Error {
	return newErr(401, "unauthorized", message, nil)
}

// Upstream is category (4) upstream transient — 502.
func Upstream(message string, err error) *Error {
	return newErr(502, "upstream_error", message, err)
}

// Timeout is category (5) local timeout.
func Timeout(message string, err error) *Error {
	return newErr(504, "timeout", message, err)
}

// Internal is category (6) local transform failed — 500, short reason to the
// client, full detail belongs in the server log via the caller.
func Internal(message string, err error) *Error {
	return newErr(500, "internal_error", message, err)
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
