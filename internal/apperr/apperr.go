// Package apperr defines the error kinds surfaced to API callers and their
// HTTP status mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers. Sub-kinds of InvalidInput share its
// status code but let tests and logs tell the cases apart.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindInvalidName         Kind = "invalid_name"
	KindEmptyQuestion       Kind = "empty_question"
	KindUnsupportedFormat   Kind = "unsupported_format"
	KindUnauthorized        Kind = "unauthorized"
	KindNotFound            Kind = "not_found"
	KindPayloadTooLarge     Kind = "payload_too_large"
	KindRateLimited         Kind = "rate_limited"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindInternal            Kind = "internal"
)

// IsInvalidInput reports whether k is InvalidInput or one of its sub-kinds.
func (k Kind) IsInvalidInput() bool {
	switch k {
	case KindInvalidInput, KindInvalidName, KindEmptyQuestion, KindUnsupportedFormat:
		return true
	}
	return false
}

// Error is an error carrying a Kind and a message that is safe to show to
// clients. The wrapped cause is only ever logged.
type Error struct {
	Kind   Kind
	Msg    string
	Err    error
	Status int // overrides the kind's default status when non-zero
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error of the given kind.
func E(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Newf builds an *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithStatus returns a copy of e reporting the given HTTP status.
func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.Status = status
	return &c
}

// KindOf returns the Kind of the first *Error in err's chain. Errors without
// one are Internal; a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	kind := KindOf(err)
	switch {
	case kind == "":
		return http.StatusOK
	case kind.IsInvalidInput():
		return http.StatusBadRequest
	}
	switch kind {
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the client-facing message for err. Internal errors never
// leak their cause.
func Detail(err error) string {
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind == KindInternal {
		return "Internal server error"
	}
	if ae.Msg != "" {
		return ae.Msg
	}
	return string(ae.Kind)
}
