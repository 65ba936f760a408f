// Package domainerrors carries coded errors across service boundaries so
// transports and CLIs can map failures to the right status without string
// matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. Values double as the wire-level error
// identifier in JSON error bodies.
type Code string

const (
	// CodeBadRequest marks a syntactically broken request (malformed JSON).
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks a missing or unverifiable auth token.
	CodeUnauthorized Code = "unauthorized"
	// CodeNotFound marks a missing resource.
	CodeNotFound Code = "not_found"
	// CodeUnprocessable marks a well-formed submission that violates the API
	// schema or the patient construction preconditions.
	CodeUnprocessable Code = "unprocessable_entity"
	// CodeConfig marks an invalid trust-entry configuration. Fatal to the
	// administrative call that triggered it, never to the service.
	CodeConfig Code = "configuration_error"
	// CodeIngestion marks malformed ontology, gene, or patient source data.
	// Fatal to the ingestion batch.
	CodeIngestion Code = "ingestion_error"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal_error"
)

// Error is a coded error with an operator-facing message and an optional
// wrapped cause.
type Error struct {
	code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Code returns the classification of the error.
func (e *Error) Code() Code { return e.code }

// Message returns the message without the wrapped cause.
func (e *Error) Message() string { return e.msg }

// New builds a coded error.
func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err returns
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in this package.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// MessageOf extracts the coded message from err, or err.Error() for foreign
// errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.msg
	}
	return err.Error()
}
