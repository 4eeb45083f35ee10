package ap2

import (
	"errors"
	"fmt"
)

// ErrKind classifies SDK failures so callers can branch without string
// matching on messages.
type ErrKind string

const (
	ErrValidation ErrKind = "validation"
	ErrAuth       ErrKind = "auth"
	ErrNotFound   ErrKind = "not_found"
	ErrState      ErrKind = "state"
	ErrIntegrity  ErrKind = "integrity"
	ErrTransport  ErrKind = "transport"
)

// ErrInFlight reports that a transition for the same mandate is already
// running and the duplicate request was dropped.
var ErrInFlight = errors.New("transition already in flight for this mandate")

type Error struct {
	Kind       ErrKind
	Message    string
	RequestID  string
	StatusCode int
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("ap2 sdk error: kind=%s status=%d message=%s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ap2 sdk error: kind=%s message=%s", e.Kind, e.Message)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// kindForCode maps the service's stable error codes onto SDK kinds.
func kindForCode(code string, status int) ErrKind {
	switch code {
	case "VALIDATION_ERROR", "BAD_JSON":
		return ErrValidation
	case "AUTH_ERROR", "FORBIDDEN":
		return ErrAuth
	case "NOT_FOUND":
		return ErrNotFound
	case "STATE_ERROR":
		return ErrState
	case "INTEGRITY_ERROR":
		return ErrIntegrity
	}
	switch status {
	case 400:
		return ErrValidation
	case 401, 403:
		return ErrAuth
	case 404:
		return ErrNotFound
	case 409:
		return ErrState
	case 422:
		return ErrIntegrity
	}
	return ErrTransport
}
