package models

import "time"

// User is the identity record returned by the auth and user endpoints.
// ID is opaque to the client.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// DisplayName is the name shown in the dashboard greeting.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// UserUpdate is the PATCH /users/me body.
type UserUpdate struct {
	FullName string `json:"full_name"`
}
