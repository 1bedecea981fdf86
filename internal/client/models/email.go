package models

import (
	"net/url"
	"strconv"
	"time"
)

// Email is a message as listed by the backend mail endpoints.
type Email struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         []string  `json:"to"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet,omitempty"`
	Body       string    `json:"body,omitempty"`
	Category   string    `json:"category,omitempty"`
	Read       bool      `json:"read"`
	ReceivedAt time.Time `json:"received_at"`
}

// EmailQuery holds the optional GET /emails query parameters.
type EmailQuery struct {
	Page     int
	PageSize int
	Unread   bool
}

// Values encodes the non-zero fields as URL query parameters.
func (q EmailQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Unread {
		v.Set("unread", "true")
	}
	return v
}

// EmailList is the GET /emails response.
type EmailList struct {
	Emails []Email `json:"emails"`
	Total  int     `json:"total"`
}

// Draft is the POST /emails body.
type Draft struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}
