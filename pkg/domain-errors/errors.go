// Package domainerrors carries coded errors across layer boundaries. Stores
// speak in sentinel errors; services translate those facts into codes here,
// and the HTTP layer maps codes onto statuses without inspecting messages.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a ledger failure for callers and the HTTP layer.
type Code string

const (
	CodeUnauthorized         Code = "unauthorized"
	CodeInvalidRecipient     Code = "invalid_recipient"
	CodeRoleLadderViolation  Code = "role_ladder_violation"
	CodeInsufficientQuantity Code = "insufficient_quantity"
	CodeNotFound             Code = "not_found"
	CodeConflict             Code = "conflict"
	CodeBadRequest           Code = "bad_request"
	CodeInternal             Code = "internal"
)

// LedgerError is a coded error. The message is safe to surface to API callers.
type LedgerError struct {
	Code    Code
	Message string
}

func (e *LedgerError) Error() string { return string(e.Code) + ": " + e.Message }

// New creates a coded error.
func New(code Code, message string) error {
	return &LedgerError{Code: code, Message: message}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var coded *LedgerError
	return errors.As(err, &coded) && coded.Code == code
}

// Is is an alias of HasCode for call sites that read better with it.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that never passed through a service translation.
func CodeOf(err error) Code {
	var coded *LedgerError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-safe message, hiding internals behind a
// generic line.
func MessageOf(err error) string {
	var coded *LedgerError
	if errors.As(err, &coded) && coded.Code != CodeInternal {
		return coded.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code onto the API status it travels as.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeInvalidRecipient, CodeRoleLadderViolation:
		return http.StatusUnprocessableEntity
	case CodeInsufficientQuantity, CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
