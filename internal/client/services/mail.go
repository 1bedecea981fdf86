package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jay/dadmail-client/internal/client/models"
)

// DefaultPageSize is used by Inbox. Large pages are hard to read for the
// people this client is built for.
const DefaultPageSize = 10

type EmailClient interface {
	List(ctx context.Context, q models.EmailQuery) (*models.EmailList, error)
	Get(ctx context.Context, id string) (*models.Email, error)
	Send(ctx context.Context, d models.Draft) (*models.Email, error)
	ByCategory(ctx context.Context, category string) (*models.EmailList, error)
}

type MailService interface {
	Inbox(ctx context.Context, page int, unreadOnly bool) (*models.EmailList, error)
	Message(ctx context.Context, id string) (*models.Email, error)
	Send(ctx context.Context, d models.Draft) (*models.Email, error)
	Category(ctx context.Context, category string) (*models.EmailList, error)
}

type mailService struct {
	emails EmailClient
}

func NewMailService(emails EmailClient) MailService {
	return &mailService{emails: emails}
}

func (m *mailService) Inbox(ctx context.Context, page int, unreadOnly bool) (*models.EmailList, error) {
	if page < 1 {
		page = 1
	}
	list, err := m.emails.List(ctx, models.EmailQuery{Page: page, PageSize: DefaultPageSize, Unread: unreadOnly})
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return list, nil
}

func (m *mailService) Message(ctx context.Context, id string) (*models.Email, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptyID
	}
	email, err := m.emails.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return email, nil
}

// Send validates and normalizes the recipients before submitting d.
func (m *mailService) Send(ctx context.Context, d models.Draft) (*models.Email, error) {
	to := make([]string, 0, len(d.To))
	for _, raw := range d.To {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRecipient, raw)
		}
		to = append(to, addr.Address)
	}
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}
	d.To = to
	if strings.TrimSpace(d.Body) == "" {
		return nil, ErrEmptyBody
	}

	sent, err := m.emails.Send(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return sent, nil
}

func (m *mailService) Category(ctx context.Context, category string) (*models.EmailList, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, ErrEmptyCategory
	}
	list, err := m.emails.ByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list category %s: %w", category, err)
	}
	return list, nil
}
