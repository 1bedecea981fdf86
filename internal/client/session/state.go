package session

import "github.com/jay/dadmail-client/internal/client/models"

// State is a point-in-time copy of the session.
type State struct {
	User            *models.User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool

	// IsLoading is set only while login, register or logout is talking to
	// the backend. Background token refresh never sets it.
	IsLoading bool
	// Error is the last authentication failure message, "" when none.
	Error string
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (s State) snapshot() models.Snapshot {
	c := s.clone()
	return models.Snapshot{
		User:            c.User,
		AccessToken:     c.AccessToken,
		RefreshToken:    c.RefreshToken,
		IsAuthenticated: c.IsAuthenticated,
	}
}
