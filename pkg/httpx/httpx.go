// Package httpx carries the JSON request/response helpers and the error
// envelope shared by the mandate service and its clients.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// Stable error codes. Clients map these onto their error taxonomy; the code
// never changes even when the message wording does.
const (
	CodeBadJSON         = "BAD_JSON"
	CodeValidationError = "VALIDATION_ERROR"
	CodeAuthError       = "AUTH_ERROR"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeStateError      = "STATE_ERROR"
	CodeIntegrityError  = "INTEGRITY_ERROR"
	CodeStoreError      = "STORE_ERROR"
)

// maxBodyBytes bounds request bodies; mandate payloads are small.
const maxBodyBytes = 1 << 20

// ErrorBody is the inner error object of the envelope.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     ErrorBody `json:"error"`
}

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodes a bounded request body, rejecting unknown fields so
// misspelled payload keys fail loudly instead of silently zeroing.
func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// WriteError emits the service's error envelope:
// {request_id, error:{code, message, details}}.
func WriteError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	WriteJSON(w, status, errorEnvelope{
		RequestID: NewRequestID(),
		Error:     ErrorBody{Code: code, Message: message, Details: details},
	})
}
