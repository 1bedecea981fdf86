package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches APIErrors carrying 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable wraps transport failures and timeouts.
	ErrUnavailable = errors.New("server unavailable")

	errNoRefreshToken   = errors.New("no refresh token")
	errEmptyAccessToken = errors.New("refresh response carried no access token")
	errSessionEnded     = errors.New("session ended during refresh")
)

// APIError is a non-2xx backend response. Message is the backend's "error"
// field when it sent one.
type APIError struct {
	StatusCode int
	Message    string
	Code       int
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}

func (e *APIError) Is(target error) bool {
	if target == ErrUnauthorized {
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// Message extracts a user-facing message from err: the backend's message
// for an APIError, otherwise fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
