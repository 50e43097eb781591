// Package httpjson is the shared request/response codec for the API. Every
// handler writes through it so envelopes and status mapping stay uniform.
package httpjson

import (
	"encoding/json"
	"io"
	"net/http"

	dErrors "custodia/pkg/domain-errors"
)

// ErrorBody is the uniform error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and a caller-safe message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Write serializes v with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a coded error onto its status and envelope. Errors without
// a code travel as internal.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	Write(w, dErrors.ToHTTPStatus(code), ErrorBody{
		Error: ErrorDetail{
			Code:    string(code),
			Message: dErrors.MessageOf(err),
		},
	})
}

const maxBodyBytes = 1 << 20

// Decode reads a JSON request body, bounding its size and rejecting trailing
// garbage.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "malformed request body")
	}
	if dec.More() {
		return dErrors.New(dErrors.CodeBadRequest, "unexpected trailing data")
	}
	return nil
}
