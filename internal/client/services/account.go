// Package services contains the client's use-cases. They sit between the
// CLI and the typed API wrappers and keep the session store's user record
// current.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/jay/dadmail-client/internal/client/models"
	"github.com/jay/dadmail-client/internal/client/session"
)

// UserClient is the user endpoint surface the account service needs.
type UserClient interface {
	Me(ctx context.Context) (*models.User, error)
	UpdateMe(ctx context.Context, upd models.UserUpdate) error
}

// Session is the part of the session store the services read and update.
type Session interface {
	State() session.State
	SetUser(ctx context.Context, user models.User)
}

// AccountService manages the signed-in user's profile.
//
// Contract:
//   - RefreshProfile: fetch the current user and store it in the session.
//   - Rename: change the display name, then refresh the profile.
//
// Both return session.ErrNotAuthenticated without calling the backend when
// nobody is signed in.
type AccountService interface {
	RefreshProfile(ctx context.Context) (*models.User, error)
	Rename(ctx context.Context, fullName string) (*models.User, error)
}

type accountService struct {
	users   UserClient
	session Session
}

func NewAccountService(users UserClient, s Session) AccountService {
	return &accountService{users: users, session: s}
}

func (a *accountService) RefreshProfile(ctx context.Context) (*models.User, error) {
	if !a.session.State().IsAuthenticated {
		return nil, session.ErrNotAuthenticated
	}
	user, err := a.users.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	a.session.SetUser(ctx, *user)
	return user, nil
}

func (a *accountService) Rename(ctx context.Context, fullName string) (*models.User, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, ErrEmptyFullName
	}
	if !a.session.State().IsAuthenticated {
		return nil, session.ErrNotAuthenticated
	}
	if err := a.users.UpdateMe(ctx, models.UserUpdate{FullName: fullName}); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return a.RefreshProfile(ctx)
}
