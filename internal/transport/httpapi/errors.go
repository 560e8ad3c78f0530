package httpapi

import (
	"errors"
	"net/http"
)

// Error is a typed transport failure: a non-2xx response or a malformed
// body. The server-provided message is carried when present.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "request failed"
}

// HTTPStatus exposes the status code for callers that classify failures
// without importing this package.
func (e *Error) HTTPStatus() int { return e.Status }

// IsUnauthorized reports whether err is a 401 transport failure.
func IsUnauthorized(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Status == http.StatusUnauthorized
}
