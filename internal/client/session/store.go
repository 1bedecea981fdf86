// Package session owns the client-side authentication state: the current
// user, the token pair, and the transient loading/error flags the UI reads.
//
// A Store is created by the composition root and handed to whoever needs it.
// It shares a tokens.Storage with the request gateway; the gateway reports
// refresh outcomes back through AdoptTokens and Invalidate.
package session

import (
	"context"
	"sync"

	"github.com/jay/dadmail-client/internal/client/gateway"
	"github.com/jay/dadmail-client/internal/client/models"
	"github.com/jay/dadmail-client/internal/client/tokens"
	"github.com/jay/dadmail-client/internal/common"
	"github.com/jay/dadmail-client/internal/logging"
)

// AuthAPI is the subset of backend endpoints the store drives.
type AuthAPI interface {
	Login(ctx context.Context, creds models.LoginCredentials) (*models.AuthResponse, error)
	Register(ctx context.Context, data models.RegisterData) (*models.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

type Store struct {
	api     AuthAPI
	tokens  tokens.Storage
	persist Persister
	log     logging.Logger

	// writeMu orders mutate+save pairs so the persisted snapshot never lags
	// behind an older state.
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   State

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

type Option func(*Store)

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns an empty, unauthenticated Store. Call Restore to load a
// previously persisted session.
func New(api AuthAPI, store tokens.Storage, opts ...Option) *Store {
	s := &Store{
		api:     api,
		tokens:  store,
		persist: &MemoryPersister{},
		log:     logging.Nop(),
		subs:    make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current session.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn to be called with the new state after every
// change. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Login authenticates with the backend. On failure the returned error is an
// *AuthError whose message is also left in State().Error.
func (s *Store) Login(ctx context.Context, creds models.LoginCredentials) error {
	s.begin(ctx)
	resp, err := s.api.Login(ctx, creds)
	if err != nil {
		return s.fail(ctx, "login", gateway.Message(err, LoginFailed), err)
	}
	if err := s.establish(ctx, resp); err != nil {
		return s.fail(ctx, "login", LoginFailed, err)
	}
	s.log.Info(ctx, "logged in", "user_id", resp.User.ID)
	return nil
}

// Register creates an account and signs into it. Same contract as Login.
func (s *Store) Register(ctx context.Context, data models.RegisterData) error {
	s.begin(ctx)
	resp, err := s.api.Register(ctx, data)
	if err != nil {
		return s.fail(ctx, "register", gateway.Message(err, RegistrationFailed), err)
	}
	if err := s.establish(ctx, resp); err != nil {
		return s.fail(ctx, "register", RegistrationFailed, err)
	}
	s.log.Info(ctx, "registered", "user_id", resp.User.ID)
	return nil
}

// Logout tells the backend to drop the session when a refresh token is
// held, then clears everything locally whatever the backend said.
func (s *Store) Logout(ctx context.Context) {
	s.update(ctx, func(st *State) { st.IsLoading = true })

	defer func() {
		s.reset(ctx, "")
		s.log.Info(ctx, "logged out")
	}()

	refresh := s.State().RefreshToken
	if refresh == "" {
		var err error
		if refresh, err = s.tokens.RefreshToken(ctx); err != nil {
			s.log.Warn(ctx, "read refresh token for logout", "error", err)
		}
	}
	if refresh == "" {
		return
	}
	if err := s.api.Logout(ctx, refresh); err != nil {
		s.log.Warn(ctx, "backend logout failed", "error", err)
	}
}

// SetTokens replaces the token pair in memory and in token storage. It does
// not touch the user. Clearing the access token also drops IsAuthenticated.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	if err := s.tokens.SetTokens(ctx, access, refresh); err != nil {
		return err
	}
	s.update(ctx, func(st *State) {
		st.AccessToken, st.RefreshToken = access, refresh
		if access == "" {
			st.IsAuthenticated = false
		}
	})
	s.log.Debug(ctx, "tokens updated", "access_token", common.MaskToken(access))
	return nil
}

// AdoptTokens mirrors a pair the gateway has already persisted after a
// refresh. It does nothing once token storage no longer holds refresh, so a
// refresh finishing after Logout cannot bring the session back.
func (s *Store) AdoptTokens(ctx context.Context, access, refresh string) {
	s.writeMu.Lock()
	stored, err := s.tokens.RefreshToken(ctx)
	if err != nil || stored != refresh {
		s.writeMu.Unlock()
		s.log.Debug(ctx, "refreshed tokens superseded", "error", err)
		return
	}

	s.mu.Lock()
	s.state.AccessToken, s.state.RefreshToken = access, refresh
	next := s.state.clone()
	s.mu.Unlock()
	if err := s.persist.Save(ctx, next.snapshot()); err != nil {
		s.log.Error(ctx, "save session snapshot", "error", err)
	}
	s.writeMu.Unlock()

	s.notify(next)
	s.log.Debug(ctx, "tokens adopted", "access_token", common.MaskToken(access))
}

// SetUser stores a fresher user record. The session counts as authenticated
// only while an access token is held.
func (s *Store) SetUser(ctx context.Context, user models.User) {
	s.update(ctx, func(st *State) {
		st.User = &user
		st.IsAuthenticated = st.AccessToken != ""
	})
}

// ClearError clears the last failure message.
func (s *Store) ClearError() {
	s.update(context.Background(), func(st *State) { st.Error = "" })
}

// Invalidate drops the local session without calling the backend. The
// gateway triggers it when a token refresh fails.
func (s *Store) Invalidate(ctx context.Context) {
	s.reset(ctx, SessionExpired)
	s.log.Info(ctx, "session invalidated")
}

// Restore loads the persisted session and reconciles it with token storage,
// which the gateway may have rotated or cleared since the snapshot was
// written. Loading and error state always start out cleared.
func (s *Store) Restore(ctx context.Context) error {
	snap, err := s.persist.Load(ctx)
	if err != nil {
		return err
	}
	access, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	refresh, err := s.tokens.RefreshToken(ctx)
	if err != nil {
		return err
	}

	s.update(ctx, func(st *State) {
		*st = State{AccessToken: access, RefreshToken: refresh}
		if snap == nil {
			return
		}
		if access == "" && refresh == "" {
			// Tokens were cleared after the snapshot was taken.
			return
		}
		st.User = snap.User
		st.IsAuthenticated = snap.IsAuthenticated && access != "" && snap.User != nil
	})

	st := s.State()
	s.log.Debug(ctx, "session restored", "authenticated", st.IsAuthenticated)
	return nil
}

func (s *Store) begin(ctx context.Context) {
	s.update(ctx, func(st *State) {
		st.IsLoading = true
		st.Error = ""
	})
}

// establish persists the tokens from resp and then applies user and tokens
// in one step. A response without both tokens establishes nothing.
func (s *Store) establish(ctx context.Context, resp *models.AuthResponse) error {
	if resp == nil || resp.AccessToken == "" || resp.RefreshToken == "" {
		return errIncompleteAuth
	}
	if err := s.tokens.SetTokens(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
		return err
	}
	user := resp.User
	s.update(ctx, func(st *State) {
		st.User = &user
		st.AccessToken = resp.AccessToken
		st.RefreshToken = resp.RefreshToken
		st.IsAuthenticated = true
		st.IsLoading = false
		st.Error = ""
	})
	return nil
}

func (s *Store) fail(ctx context.Context, op, msg string, cause error) error {
	s.update(ctx, func(st *State) {
		st.IsLoading = false
		st.Error = msg
	})
	s.log.Warn(ctx, op+" failed", "error", cause)
	return &AuthError{Op: op, Message: msg, Err: cause}
}

// reset clears tokens, snapshot and state, leaving errMsg as the only
// non-zero field.
func (s *Store) reset(ctx context.Context, errMsg string) {
	if err := s.tokens.Clear(ctx); err != nil {
		s.log.Error(ctx, "clear tokens", "error", err)
	}

	s.writeMu.Lock()
	s.mu.Lock()
	s.state = State{Error: errMsg}
	next := s.state.clone()
	s.mu.Unlock()
	if err := s.persist.Clear(ctx); err != nil {
		s.log.Error(ctx, "clear session snapshot", "error", err)
	}
	s.writeMu.Unlock()

	s.notify(next)
}

// update applies fn, saves the persisted subset and notifies subscribers.
func (s *Store) update(ctx context.Context, fn func(*State)) {
	s.writeMu.Lock()
	s.mu.Lock()
	fn(&s.state)
	next := s.state.clone()
	s.mu.Unlock()

	if err := s.persist.Save(ctx, next.snapshot()); err != nil {
		s.log.Error(ctx, "save session snapshot", "error", err)
	}
	s.writeMu.Unlock()

	s.notify(next)
}

func (s *Store) notify(st State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(st.clone())
	}
}
