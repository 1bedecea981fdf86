package api

import (
	"context"
	"net/http"

	"github.com/jay/dadmail-client/internal/client/gateway"
	"github.com/jay/dadmail-client/internal/client/models"
)

const mePath = "/users/me"

type UserAPI struct {
	doer Doer
}

func NewUserAPI(d Doer) *UserAPI {
	return &UserAPI{doer: d}
}

func (u *UserAPI) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := u.doer.Do(ctx, gateway.Request{Method: http.MethodGet, Path: mePath}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateMe patches the current user. The backend acknowledges with a
// message only; callers re-read the record with Me.
func (u *UserAPI) UpdateMe(ctx context.Context, upd models.UserUpdate) error {
	return u.doer.Do(ctx, gateway.Request{Method: http.MethodPatch, Path: mePath, Body: upd}, nil)
}
