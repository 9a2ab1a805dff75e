package ragstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Use errors.Is() to check.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("service unavailable")
	// ErrIncompleteStream means the connection ended before the terminator.
	ErrIncompleteStream = errors.New("stream ended before [DONE]")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("ragstream: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ragstream: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the status code to a sentinel.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return ErrUnavailable
	default:
		return nil
	}
}
