package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches any backend response rejected with 401.
var ErrUnauthorized = errors.New("backend: unauthorized")

// StatusError reports a non-2xx backend response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrUnauthorized) see through a 401 StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// AuthenticationError is returned when the credential exchange with the
// backend fails (bad credentials, network error, non-2xx, malformed reply).
type AuthenticationError struct {
	Op  string
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Op, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Code is picked up by the handler summary logger as err_code.
func (e *AuthenticationError) Code() string { return "auth_failed" }

// SubmissionError wraps any failure to deliver a mail through the backend.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("feedback submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Code is picked up by the handler summary logger as err_code.
func (e *SubmissionError) Code() string {
	if errors.Is(e.Err, ErrUnauthorized) {
		return "submit_unauthorized"
	}
	return "submit_failed"
}
