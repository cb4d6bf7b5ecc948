// Package errs is the single error taxonomy for the council pipeline.
// Invoker and stage failures are classified into kinds; the HTTP host maps
// kinds to status codes. Most kinds are recovered locally by a stage's
// fallback; only "all invokers of a required stage failed" is fatal.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindTimeout    Kind = "timeout"    // backend deadline exceeded
	KindTransport  Kind = "transport"  // HTTP failure or malformed transport
	KindStatus     Kind = "status"     // non-2xx backend response
	KindParse      Kind = "parse"      // output unrecoverable even after repair
	KindValidation Kind = "validation" // parseable but missing required fields
	KindBadInput   Kind = "bad_input"  // caller-supplied input rejected
	KindPipeline   Kind = "pipeline"   // all invokers of a required stage failed
	KindUnknown    Kind = "unknown"
)

// Error carries a kind alongside the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Code    int // backend HTTP status for KindStatus; 0 otherwise
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout wraps err as a backend-deadline failure.
func Timeout(msg string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Err: err}
}

// Transport wraps err as an HTTP/transport failure.
func Transport(msg string, err error) *Error {
	return &Error{Kind: KindTransport, Message: msg, Err: err}
}

// Status records a non-2xx backend response.
func Status(msg string, code int) *Error {
	return &Error{Kind: KindStatus, Message: fmt.Sprintf("%s: HTTP %d", msg, code), Code: code}
}

// Parse marks output that could not be recovered by tolerant JSON repair.
func Parse(msg string, err error) *Error {
	return &Error{Kind: KindParse, Message: msg, Err: err}
}

// Validation marks structurally parseable output missing required fields.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// BadInput rejects caller-supplied input.
func BadInput(msg string) *Error {
	return &Error{Kind: KindBadInput, Message: msg}
}

// Pipeline marks a required stage whose invokers all failed.
func Pipeline(msg string) *Error {
	return &Error{Kind: KindPipeline, Message: msg}
}

// KindOf extracts the kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is a transport-level failure worth retrying.
// Parse and validation failures are never retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindTransport:
		return true
	}
	return false
}

// HTTPStatus maps an error to the status code the host should return.
//
// Expectations:
//   - Timeout → 504
//   - Transport and Status → 502
//   - Validation → 422
//   - BadInput → 400
//   - Pipeline → 502
//   - anything else → 500
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindTransport, KindStatus, KindPipeline:
		return http.StatusBadGateway
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindBadInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
