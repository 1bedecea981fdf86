package services

import "errors"

var (
	ErrEmptyFullName    = errors.New("full name must not be empty")
	ErrEmptyID          = errors.New("message id must not be empty")
	ErrEmptyCategory    = errors.New("category must not be empty")
	ErrNoRecipients     = errors.New("at least one recipient is required")
	ErrInvalidRecipient = errors.New("invalid recipient address")
	ErrEmptyBody        = errors.New("the message is empty")
)
