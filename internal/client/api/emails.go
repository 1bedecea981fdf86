package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jay/dadmail-client/internal/client/gateway"
	"github.com/jay/dadmail-client/internal/client/models"
)

const emailsPath = "/emails"

type EmailAPI struct {
	doer Doer
}

func NewEmailAPI(d Doer) *EmailAPI {
	return &EmailAPI{doer: d}
}

func (e *EmailAPI) List(ctx context.Context, q models.EmailQuery) (*models.EmailList, error) {
	var list models.EmailList
	err := e.doer.Do(ctx, gateway.Request{Method: http.MethodGet, Path: emailsPath, Query: q.Values()}, &list)
	if err != nil {
		return nil, err
	}
	return &list, nil
}

func (e *EmailAPI) Get(ctx context.Context, id string) (*models.Email, error) {
	var email models.Email
	err := e.doer.Do(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   emailsPath + "/" + url.PathEscape(id),
	}, &email)
	if err != nil {
		return nil, err
	}
	return &email, nil
}

// Send submits a draft. The backend answers with the stored message.
func (e *EmailAPI) Send(ctx context.Context, d models.Draft) (*models.Email, error) {
	var email models.Email
	err := e.doer.Do(ctx, gateway.Request{Method: http.MethodPost, Path: emailsPath, Body: d}, &email)
	if err != nil {
		return nil, err
	}
	return &email, nil
}

func (e *EmailAPI) ByCategory(ctx context.Context, category string) (*models.EmailList, error) {
	var list models.EmailList
	err := e.doer.Do(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   emailsPath + "/categories/" + url.PathEscape(category),
	}, &list)
	if err != nil {
		return nil, err
	}
	return &list, nil
}
