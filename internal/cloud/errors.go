package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors for cloud API failures. Wrapped errors can be matched
// with errors.Is.
var (
	// ErrUnauthorized indicates the API token was rejected (401/403).
	ErrUnauthorized = errors.New("cloud: unauthorised")

	// ErrNotFound indicates the requested resource does not exist (404).
	ErrNotFound = errors.New("cloud: not found")

	// ErrRateLimited indicates the cloud rejected the request rate (429).
	ErrRateLimited = errors.New("cloud: rate limited")

	// ErrServer indicates a 5xx response from the cloud.
	ErrServer = errors.New("cloud: server error")

	// ErrOutOfRange indicates a control value outside its permitted range.
	ErrOutOfRange = errors.New("cloud: value out of range")

	// ErrCommandFailed indicates the cloud accepted the request but the
	// mesh operation did not succeed.
	ErrCommandFailed = errors.New("cloud: command failed")

	// errTransport marks connection-level failures that are worth retrying.
	errTransport = errors.New("cloud: transport failure")
)

// APIError is a non-2xx response from the Connect Mesh cloud.
type APIError struct {
	StatusCode int
	Body       string
}

// Error returns a description including the HTTP status code.
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cloud: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("cloud: HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps the status code onto the package sentinels so callers can
// use errors.Is without inspecting codes.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrUnauthorized
	case e.StatusCode == 404:
		return ErrNotFound
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return nil
	}
}
