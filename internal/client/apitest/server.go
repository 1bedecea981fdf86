// Package apitest runs an in-process DadMail backend for tests. It speaks
// the same routes and JSON shapes as the real service, keeps everything in
// memory, and exposes knobs to expire tokens or break the refresh endpoint.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jay/dadmail-client/internal/client/models"
	"golang.org/x/crypto/bcrypt"
)

// APIPrefix is where the versioned routes live.
const APIPrefix = "/api/v1"

type account struct {
	user     models.User
	password []byte
	inbox    []models.Email
}

type Server struct {
	srv    *httptest.Server
	secret []byte

	mu          sync.Mutex
	accounts    map[string]*account // by email
	byID        map[string]*account
	sessions    map[string]string // refresh token -> user id
	generation  int
	failRefresh bool

	refreshes atomic.Int32
	logouts   atomic.Int32
}

// Claims identifies the user and the token generation an access token was
// minted in. ExpireAccessTokens bumps the generation.
type Claims struct {
	jwt.RegisteredClaims
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Generation int    `json:"gen"`
}

// New starts a server that is closed when tb finishes.
func New(tb testing.TB) *Server {
	tb.Helper()
	s := &Server{
		secret:   []byte(uuid.NewString()),
		accounts: make(map[string]*account),
		byID:     make(map[string]*account),
		sessions: make(map[string]string),
	}
	s.srv = httptest.NewServer(s.router())
	tb.Cleanup(s.srv.Close)
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix(APIPrefix).Subrouter()
	v1.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	v1.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	v1.HandleFunc("/auth/refresh", s.refresh).Methods(http.MethodPost)
	v1.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)

	protected := v1.NewRoute().Subrouter()
	protected.Use(s.authenticate)
	protected.HandleFunc("/users/me", s.me).Methods(http.MethodGet)
	protected.HandleFunc("/users/me", s.updateMe).Methods(http.MethodPatch)
	protected.HandleFunc("/emails", s.listEmails).Methods(http.MethodGet)
	protected.HandleFunc("/emails", s.sendEmail).Methods(http.MethodPost)
	protected.HandleFunc("/emails/categories/{category}", s.emailsByCategory).Methods(http.MethodGet)
	protected.HandleFunc("/emails/{id}", s.getEmail).Methods(http.MethodGet)
	return r
}

// URL is the API base URL, including the version prefix.
func (s *Server) URL() string {
	return s.srv.URL + APIPrefix
}

func (s *Server) HealthURL() string {
	return s.srv.URL + "/health"
}

// Close stops the server early, e.g. to simulate the backend going away.
func (s *Server) Close() {
	s.srv.Close()
}

// AddUser creates an account directly, bypassing /auth/register.
func (s *Server) AddUser(email, password, fullName string) models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(email, hash, fullName).user
}

func (s *Server) addLocked(email string, hash []byte, fullName string) *account {
	acc := &account{
		user: models.User{
			ID:        uuid.NewString(),
			Email:     email,
			FullName:  fullName,
			Role:      "user",
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		},
		password: hash,
	}
	s.accounts[email] = acc
	s.byID[acc.user.ID] = acc
	return acc
}

// AddEmail places a message in the inbox of the user with the given address.
// An empty ID is filled in.
func (s *Server) AddEmail(to string, m models.Email) models.Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[to]
	if !ok {
		panic("apitest: unknown user " + to)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if len(m.To) == 0 {
		m.To = []string{to}
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now().UTC().Truncate(time.Second)
	}
	acc.inbox = append(acc.inbox, m)
	return m
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// RevokeSessions drops every refresh token, so the next refresh fails.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	s.sessions = make(map[string]string)
	s.mu.Unlock()
}

// FailRefresh makes /auth/refresh answer 500 while on is set.
func (s *Server) FailRefresh(on bool) {
	s.mu.Lock()
	s.failRefresh = on
	s.mu.Unlock()
}

// Refreshes counts calls to /auth/refresh.
func (s *Server) Refreshes() int {
	return int(s.refreshes.Load())
}

// Logouts counts calls to /auth/logout.
func (s *Server) Logouts() int {
	return int(s.logouts.Load())
}

// Sessions is the number of live refresh tokens.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// User returns the stored record for email.
func (s *Server) User(email string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[email]
	if !ok {
		return models.User{}, false
	}
	return acc.user, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorBody{Error: msg})
}
