package apitest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jay/dadmail-client/internal/client/models"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.FullName == "" {
		writeError(w, http.StatusBadRequest, "Email, password, and full name are required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters long")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[req.Email]; exists {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}
	resp, err := s.issueLocked(s.addLocked(req.Email, hash, req.FullName))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate access token")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginCredentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[req.Email]
	if !ok || bcrypt.CompareHashAndPassword(acc.password, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	now := time.Now().UTC().Truncate(time.Second)
	acc.user.LastLoginAt = &now

	resp, err := s.issueLocked(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate access token")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	s.refreshes.Add(1)

	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRefresh {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	userID, ok := s.sessions[req.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	acc, ok := s.byID[userID]
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found")
		return
	}

	delete(s.sessions, req.RefreshToken)
	resp, err := s.issueLocked(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate access token")
		return
	}
	writeJSON(w, http.StatusOK, models.RefreshResponse{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.logouts.Add(1)

	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.RefreshToken = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "No token provided")
			return
		}
	}
	s.mu.Lock()
	delete(s.sessions, req.RefreshToken)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accountFromLocked(r)
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var req models.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FullName == "" {
		writeError(w, http.StatusBadRequest, "Full name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accountFromLocked(r)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Failed to update user")
		return
	}
	acc.user.FullName = req.FullName
	writeJSON(w, http.StatusOK, map[string]string{"message": "User updated successfully"})
}

func (s *Server) listEmails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unread := q.Get("unread") == "true"
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, _ := s.accountFromLocked(r)

	var matched []models.Email
	for _, m := range acc.inbox {
		if unread && m.Read {
			continue
		}
		matched = append(matched, m)
	}
	writeJSON(w, http.StatusOK, models.EmailList{Emails: paginate(matched, page, size), Total: len(matched)})
}

func (s *Server) emailsByCategory(w http.ResponseWriter, r *http.Request) {
	category := mux.Vars(r)["category"]

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, _ := s.accountFromLocked(r)

	list := models.EmailList{Emails: []models.Email{}}
	for _, m := range acc.inbox {
		if strings.EqualFold(m.Category, category) {
			list.Emails = append(list.Emails, m)
		}
	}
	list.Total = len(list.Emails)
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getEmail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, _ := s.accountFromLocked(r)
	for i := range acc.inbox {
		if acc.inbox[i].ID == id {
			acc.inbox[i].Read = true
			writeJSON(w, http.StatusOK, acc.inbox[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "Email not found")
}

func (s *Server) sendEmail(w http.ResponseWriter, r *http.Request) {
	var d models.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(d.To) == 0 {
		writeError(w, http.StatusBadRequest, "At least one recipient is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, _ := s.accountFromLocked(r)
	sent := models.Email{
		ID:         uuid.NewString(),
		From:       acc.user.Email,
		To:         d.To,
		Subject:    d.Subject,
		Body:       d.Body,
		Read:       true,
		ReceivedAt: time.Now().UTC().Truncate(time.Second),
	}
	for _, to := range d.To {
		if rcpt, ok := s.accounts[to]; ok {
			delivered := sent
			delivered.Read = false
			rcpt.inbox = append(rcpt.inbox, delivered)
		}
	}
	writeJSON(w, http.StatusCreated, sent)
}

func paginate(in []models.Email, page, size int) []models.Email {
	if in == nil {
		in = []models.Email{}
	}
	if size <= 0 {
		return in
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(in) {
		return []models.Email{}
	}
	end := start + size
	if end > len(in) {
		end = len(in)
	}
	return in[start:end]
}
