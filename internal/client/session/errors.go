package session

import "errors"

// Fallback messages shown when the backend gives no reason.
const (
	LoginFailed        = "Login failed"
	RegistrationFailed = "Registration failed"
	SessionExpired     = "Your session has expired. Please log in again."
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")

	errIncompleteAuth = errors.New("auth response is missing a token")
)

// AuthError is returned by Login and Register. Message is what the user
// sees; Err is the underlying cause.
type AuthError struct {
	Op      string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
