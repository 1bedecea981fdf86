package api

import (
	"context"
	"net/http"

	"github.com/jay/dadmail-client/internal/client/gateway"
	"github.com/jay/dadmail-client/internal/client/models"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	logoutPath   = "/auth/logout"
)

type AuthAPI struct {
	doer Doer
}

func NewAuthAPI(d Doer) *AuthAPI {
	return &AuthAPI{doer: d}
}

// Login exchanges credentials for a token pair. A 401 here is a rejected
// password, so the gateway must not try to refresh.
func (a *AuthAPI) Login(ctx context.Context, creds models.LoginCredentials) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	err := a.doer.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      loginPath,
		Body:      creds,
		NoRefresh: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *AuthAPI) Register(ctx context.Context, data models.RegisterData) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	err := a.doer.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      registerPath,
		Body:      data,
		NoRefresh: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout asks the backend to drop the session identified by refreshToken.
func (a *AuthAPI) Logout(ctx context.Context, refreshToken string) error {
	return a.doer.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   logoutPath,
		Body:   models.RefreshRequest{RefreshToken: refreshToken},
	}, nil)
}
