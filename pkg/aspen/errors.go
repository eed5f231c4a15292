package aspen

import (
	"errors"
	"fmt"
)

var (
	// ErrPortalUnreachable wraps network-level failures; the next scheduled
	// cycle is the retry boundary.
	ErrPortalUnreachable = errors.New("aspen portal unreachable")

	// ErrTokenNotFound means the login page no longer carries the expected
	// hidden form field, i.e. upstream markup changed.
	ErrTokenNotFound = errors.New("login token not found")

	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLoginRejected covers ambiguous login failures where neither the
	// authenticated markers nor the invalid-credentials text were found.
	ErrLoginRejected = errors.New("login rejected")

	ErrNoStudentFound = errors.New("no student found")

	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError reports a non-200 response from a portal REST endpoint.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream error (url: %s, status: %d)", e.URL, e.Code)
}
