package treeherder

import (
	"errors"
	"fmt"
)

// Sentinel errors for Treeherder operations.
var (
	// ErrMissingURL indicates no Treeherder URL was configured.
	ErrMissingURL = errors.New("treeherder url is not set")

	// ErrMissingCredentials indicates the Hawk client id or secret is empty.
	ErrMissingCredentials = errors.New("treeherder client id and secret must be set")

	// ErrRevisionNotFound indicates the result-set lookup returned no match,
	// usually because the revision has not been ingested yet.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrUnauthorized indicates Treeherder rejected the Hawk credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable indicates Treeherder answered with a server error.
	ErrUnavailable = errors.New("treeherder unavailable")
)

// APIError wraps a failed Treeherder request with context.
type APIError struct {
	// Op is the operation that failed (e.g., "RevisionHash", "PostCollection").
	Op string

	// URL is the request URL.
	URL string

	// StatusCode is the HTTP status, zero when the request never completed.
	StatusCode int

	// Body is a truncated copy of the response body.
	Body string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("treeherder %s: %s: status %d: %v: %s", e.Op, e.URL, e.StatusCode, e.Err, e.Body)
		}
		return fmt.Sprintf("treeherder %s: %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("treeherder %s: %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRevisionNotFound returns true if the lookup found no result set.
func IsRevisionNotFound(err error) bool {
	return errors.Is(err, ErrRevisionNotFound)
}

// IsUnauthorized returns true if Treeherder rejected the credentials.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
