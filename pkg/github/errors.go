package github

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents an upstream error carrying an HTTP status code.
// The scheduler inspects the code for throttle classification (403/429);
// everything else is opaque to the rest of the system.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream error (status %d) on %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("upstream error (status %d) on %s", e.StatusCode, e.URL)
}

// HTTPStatus returns the upstream status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
