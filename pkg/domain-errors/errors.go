// Package dErrors defines the error taxonomy shared across the workflow core.
//
// Services construct coded errors at the point of failure; transport translates
// codes to HTTP statuses without inspecting messages. Store failures are
// wrapped with CodeStorage so the underlying error stays reachable via
// errors.Unwrap while callers branch on the code alone.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. Codes are stable API surface; messages
// are free-form detail for the caller.
type Code string

const (
	// CodeValidation covers malformed or out-of-range input.
	CodeValidation Code = "validation_error"
	// CodeNotFound covers lookups of unknown entity ids.
	CodeNotFound Code = "not_found"
	// CodeInvalidState covers operations against an entity in a terminal or
	// otherwise incompatible state, e.g. deciding a closed ticket.
	CodeInvalidState Code = "invalid_state_transition"
	// CodeConflict covers a concurrent-write race lost by this caller.
	CodeConflict Code = "conflict"
	// CodeEmptyBatch covers packet generation against a batch with no entries.
	CodeEmptyBatch Code = "empty_batch"
	// CodeStorage covers failures propagated unmodified from the durable store.
	CodeStorage Code = "storage_failure"
	// CodeTimeout covers transactions aborted by context cancellation.
	CodeTimeout Code = "timeout"
	// CodeInternal is the fallback for unclassified failures.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. Field identifies the offending input field or
// entity id when one exists, so callers can decide whether to retry, fix
// input, or escalate.
type Error struct {
	Code    Code
	Message string
	Field   string
	wrapped error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New builds a coded error with a human-readable message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithField annotates the error with the offending field or id.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// Wrap attaches a code and message to an underlying error, preserving it for
// errors.Is / errors.Unwrap.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, wrapped: err}
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// ToHTTPStatus maps a code to the status the transport layer should return.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeConflict:
		return http.StatusConflict
	case CodeEmptyBatch:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
