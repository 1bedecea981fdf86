// Package models defines the client-side data models exchanged with the
// DadMail backend and persisted locally.
package models
