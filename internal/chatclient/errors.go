package chatclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrServiceUnavailable is matched by every NetworkError.
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrNotConnected       = errors.New("not connected")
	ErrNotInGroup         = errors.New("not in a chat group")
	ErrSessionEnded       = errors.New("therapy session has ended")
)

// NetworkError means the backend could not be reached. Callers should offer
// a retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: service unavailable: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrServiceUnavailable }

// ValidationError is a missing or invalid input caught before any request
// is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// BackendError is a non-2xx response. Message is the server's error field
// when present.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

func newBackendError(status int, msg string) *BackendError {
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = "request failed"
	}
	return &BackendError{Status: status, Message: msg}
}

// BannedError is the terminal chat state.
type BannedError struct {
	Message  string
	Reason   string
	BannedAt *time.Time
}

func (e *BannedError) Error() string {
	if e.Reason != "" {
		return "banned from chat: " + e.Reason
	}
	return "banned from chat"
}
