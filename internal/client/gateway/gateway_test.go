package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jay/dadmail-client/internal/client/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*************
 * fake backend
 *************/

type fakeBackend struct {
	t *testing.T

	// validToken is the access token /users/me accepts.
	mu         sync.Mutex
	validToken string

	refreshStatus int
	refreshBody   string
	refreshDelay  time.Duration

	refreshCalls   atomic.Int32
	protectedCalls atomic.Int32

	lastRefreshReq  string
	lastRefreshAuth string
	requestIDs      []string
	bodies          []string
	authHeaders     []string
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{t: t, validToken: "T1", refreshStatus: http.StatusOK, refreshBody: `{"access_token":"T2"}`}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", fb.handleRefresh)
	mux.HandleFunc("/users/me", fb.handleProtected)
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"Failed to update user","code":500}`)
	})
	mux.HandleFunc("GET /forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"caregiver role required"}`)
	})
	mux.HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBackend) setValidToken(tok string) {
	fb.mu.Lock()
	fb.validToken = tok
	fb.mu.Unlock()
}

func (fb *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	fb.refreshCalls.Add(1)
	b, _ := io.ReadAll(r.Body)

	fb.mu.Lock()
	fb.lastRefreshReq = string(b)
	fb.lastRefreshAuth = r.Header.Get("Authorization")
	status, body, delay := fb.refreshStatus, fb.refreshBody, fb.refreshDelay
	fb.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status == http.StatusOK {
		var resp struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal([]byte(body), &resp); err == nil && resp.AccessToken != "" {
			fb.setValidToken(resp.AccessToken)
		}
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (fb *fakeBackend) handleProtected(w http.ResponseWriter, r *http.Request) {
	fb.protectedCalls.Add(1)
	b, _ := io.ReadAll(r.Body)

	fb.mu.Lock()
	fb.requestIDs = append(fb.requestIDs, r.Header.Get("X-Request-ID"))
	fb.bodies = append(fb.bodies, string(b))
	fb.authHeaders = append(fb.authHeaders, r.Header.Get("Authorization"))
	valid := fb.validToken
	fb.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+valid {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Invalid or expired token"}`)
		return
	}
	_, _ = io.WriteString(w, `{"id":"1","email":"a@b.com","full_name":"A B","role":"user","created_at":"2026-01-01T00:00:00Z"}`)
}

type hookRecorder struct {
	mu        sync.Mutex
	refreshed [][2]string
	expired   int
}

func (h *hookRecorder) hooks() Hooks {
	return Hooks{
		OnRefreshed: func(_ context.Context, access, refresh string) {
			h.mu.Lock()
			h.refreshed = append(h.refreshed, [2]string{access, refresh})
			h.mu.Unlock()
		},
		OnSessionExpired: func(context.Context) {
			h.mu.Lock()
			h.expired++
			h.mu.Unlock()
		},
	}
}

type me struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func newGateway(t *testing.T, srv *httptest.Server, store tokens.Storage, h *hookRecorder) *Gateway {
	t.Helper()
	return New(srv.URL, 2*time.Second, store, WithHooks(h.hooks()), WithHealthURL(srv.URL+"/health"))
}

func seeded(t *testing.T, access, refresh string) *tokens.MemoryStorage {
	t.Helper()
	s := tokens.NewMemoryStorage()
	require.NoError(t, s.SetTokens(context.Background(), access, refresh))
	return s
}

/*************
 * tests
 *************/

func TestDo_AttachesBearerFromStorage(t *testing.T) {
	fb, srv := newFakeBackend(t)
	g := newGateway(t, srv, seeded(t, "T1", "R1"), &hookRecorder{})

	var got me
	require.NoError(t, g.Do(context.Background(), Request{Path: "/users/me"}, &got))

	assert.Equal(t, "1", got.ID)
	assert.Equal(t, []string{"Bearer T1"}, fb.authHeaders)
	assert.EqualValues(t, 0, fb.refreshCalls.Load())
}

func TestDo_NoTokenSendsUnauthenticated(t *testing.T) {
	fb, srv := newFakeBackend(t)
	g := newGateway(t, srv, tokens.NewMemoryStorage(), &hookRecorder{})

	err := g.Do(context.Background(), Request{Path: "/users/me"}, nil)

	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, []string{""}, fb.authHeaders)
	assert.EqualValues(t, 0, fb.refreshCalls.Load())
}

func TestDo_RefreshesOnceAndReplays(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	store := seeded(t, "T1", "R1")
	h := &hookRecorder{}
	g := newGateway(t, srv, store, h)

	var got me
	err := g.Do(context.Background(), Request{Path: "/users/me"}, &got)

	require.NoError(t, err)
	assert.Equal(t, "a@b.com", got.Email, "caller receives the replay's response")
	assert.EqualValues(t, 1, fb.refreshCalls.Load())
	assert.EqualValues(t, 2, fb.protectedCalls.Load(), "original + exactly one replay")
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, fb.authHeaders)
	assert.JSONEq(t, `{"refresh_token":"R1"}`, fb.lastRefreshReq)
	assert.Empty(t, fb.lastRefreshAuth, "refresh goes out-of-band without a bearer")

	access, _ := store.AccessToken(context.Background())
	refresh, _ := store.RefreshToken(context.Background())
	assert.Equal(t, "T2", access)
	assert.Equal(t, "R1", refresh, "refresh token kept when not rotated")
	assert.Equal(t, [][2]string{{"T2", "R1"}}, h.refreshed)
	assert.Zero(t, h.expired)
}

func TestDo_ReplayKeepsRequestIDAndBody(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	g := newGateway(t, srv, seeded(t, "T1", "R1"), &hookRecorder{})

	err := g.Do(context.Background(), Request{
		Method: http.MethodPatch,
		Path:   "/users/me",
		Body:   map[string]string{"full_name": "Grandpa Joe"},
	}, nil)
	require.NoError(t, err)

	require.Len(t, fb.requestIDs, 2)
	assert.NotEmpty(t, fb.requestIDs[0])
	assert.Equal(t, fb.requestIDs[0], fb.requestIDs[1])
	assert.Equal(t, fb.bodies[0], fb.bodies[1])
	assert.JSONEq(t, `{"full_name":"Grandpa Joe"}`, fb.bodies[1])
}

func TestDo_PersistsRotatedRefreshToken(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	fb.refreshBody = `{"access_token":"T2","refresh_token":"R2"}`
	store := seeded(t, "T1", "R1")
	h := &hookRecorder{}
	g := newGateway(t, srv, store, h)

	require.NoError(t, g.Do(context.Background(), Request{Path: "/users/me"}, nil))

	refresh, _ := store.RefreshToken(context.Background())
	assert.Equal(t, "R2", refresh)
	assert.Equal(t, [][2]string{{"T2", "R2"}}, h.refreshed)
}

func TestDo_NoRefreshTokenReturnsOriginalFailure(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	h := &hookRecorder{}
	g := newGateway(t, srv, seeded(t, "T1", ""), h)

	err := g.Do(context.Background(), Request{Path: "/users/me"}, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid or expired token", apiErr.Message)
	assert.EqualValues(t, 0, fb.refreshCalls.Load())
	assert.EqualValues(t, 1, fb.protectedCalls.Load())
	assert.Zero(t, h.expired)
}

func TestDo_RefreshFailureClearsTokensAndExpiresSession(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	fb.refreshStatus = http.StatusUnauthorized
	fb.refreshBody = `{"error":"Invalid or expired refresh token"}`
	store := seeded(t, "T1", "R1")
	h := &hookRecorder{}
	g := newGateway(t, srv, store, h)

	err := g.Do(context.Background(), Request{Path: "/users/me"}, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid or expired token", apiErr.Message, "original failure is propagated, not the refresh failure")
	assert.EqualValues(t, 1, fb.refreshCalls.Load())
	assert.EqualValues(t, 1, fb.protectedCalls.Load(), "no replay after refresh failure")

	access, _ := store.AccessToken(context.Background())
	refresh, _ := store.RefreshToken(context.Background())
	assert.Empty(t, access)
	assert.Empty(t, refresh)
	assert.Equal(t, 1, h.expired)
	assert.Empty(t, h.refreshed)
}

func TestDo_RefreshWithoutAccessTokenIsAFailure(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	fb.refreshBody = `{}`
	store := seeded(t, "T1", "R1")
	h := &hookRecorder{}
	g := newGateway(t, srv, store, h)

	err := g.Do(context.Background(), Request{Path: "/users/me"}, nil)

	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, h.expired)
	access, _ := store.AccessToken(context.Background())
	assert.Empty(t, access)
}

func TestDo_RefreshTransportFailureExpiresSession(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	fb.refreshDelay = 500 * time.Millisecond
	store := seeded(t, "T1", "R1")
	h := &hookRecorder{}
	g := New(srv.URL, 200*time.Millisecond, store, WithHooks(h.hooks()))

	err := g.Do(context.Background(), Request{Path: "/users/me"}, nil)

	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, h.expired)
	refresh, _ := store.RefreshToken(context.Background())
	assert.Empty(t, refresh)
}

func TestDo_ReplayFailureIsReturnedWithoutSecondRefresh(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("never-matches")
	fb.refreshBody = `{"access_token":"T2"}`
	h := &hookRecorder{}

	// The refresh handler would make T2 valid; pin the valid token afterwards.
	g := New(srv.URL, 2*time.Second, seeded(t, "T1", "R1"), WithHooks(Hooks{
		OnRefreshed: func(context.Context, string, string) { fb.setValidToken("still-not-T2") },
	}))

	err := g.Do(context.Background(), Request{Path: "/users/me"}, nil)

	require.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 1, fb.refreshCalls.Load())
	assert.EqualValues(t, 2, fb.protectedCalls.Load())
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, fb.authHeaders)
	assert.Zero(t, h.expired)
}

func TestDo_NoRefreshFlagReturns401AsIs(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	g := newGateway(t, srv, seeded(t, "T1", "R1"), &hookRecorder{})

	err := g.Do(context.Background(), Request{Path: "/users/me", NoRefresh: true}, nil)

	require.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 0, fb.refreshCalls.Load())
}

func TestDo_OtherStatusesPassThrough(t *testing.T) {
	fb, srv := newFakeBackend(t)
	g := newGateway(t, srv, seeded(t, "T1", "R1"), &hookRecorder{})

	err := g.Do(context.Background(), Request{Path: "/boom"}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Failed to update user", apiErr.Message)
	assert.Equal(t, 500, apiErr.Code)
	assert.False(t, errors.Is(err, ErrUnauthorized))

	err = g.Do(context.Background(), Request{Path: "/forbidden"}, nil)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 0, fb.refreshCalls.Load(), "403 never triggers a refresh")
}

func TestDo_TransportErrors(t *testing.T) {
	_, srv := newFakeBackend(t)

	g := New(srv.URL, 100*time.Millisecond, tokens.NewMemoryStorage())
	err := g.Do(context.Background(), Request{Path: "/slow"}, nil)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsUnavailable(err))

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	g = New(closed.URL, time.Second, tokens.NewMemoryStorage())
	err = g.Do(context.Background(), Request{Path: "/users/me"}, nil)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDo_EncodesQueryAndRejectsBadBody(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := New(srv.URL+"/", time.Second, tokens.NewMemoryStorage())
	var out map[string]any
	require.NoError(t, g.Do(context.Background(), Request{Path: "/emails", Query: url.Values{"page": {"2"}}}, &out))
	assert.Equal(t, "2", gotQuery.Get("page"))
	assert.Nil(t, out, "empty body leaves out untouched")

	err := g.Do(context.Background(), Request{Method: http.MethodPost, Path: "/emails", Body: make(chan int)}, nil)
	require.ErrorContains(t, err, "encode POST /emails body")
}

func TestDo_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))
	defer srv.Close()

	g := New(srv.URL, time.Second, tokens.NewMemoryStorage())
	var out me
	err := g.Do(context.Background(), Request{Path: "/users/me"}, &out)
	require.ErrorContains(t, err, "decode /users/me response")
}

func TestDo_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	fb.refreshDelay = 150 * time.Millisecond
	store := seeded(t, "T1", "R1")
	h := &hookRecorder{}
	g := newGateway(t, srv, store, h)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.Do(context.Background(), Request{Path: "/users/me"}, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d", i)
	}
	assert.EqualValues(t, 1, fb.refreshCalls.Load(), "concurrent 401s must not trigger redundant refreshes")
	assert.Len(t, h.refreshed, 1)
}

func TestDo_UsesTokenRefreshedByAnotherExchange(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T2")
	store := seeded(t, "T1", "R1")

	g := newGateway(t, srv, store, &hookRecorder{})
	// The first send reads T1; simulate another exchange rotating the token
	// while this request is in flight.
	g.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if strings.HasSuffix(r.Header.Get("Authorization"), "T1") {
			_ = store.SetAccessToken(r.Context(), "T2")
		}
		return http.DefaultTransport.RoundTrip(r)
	})}

	require.NoError(t, g.Do(context.Background(), Request{Path: "/users/me"}, nil))
	assert.EqualValues(t, 0, fb.refreshCalls.Load())
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, fb.authHeaders)
}

// interleavedStorage runs between once, right after the nth AccessToken
// read returns.
type interleavedStorage struct {
	*tokens.MemoryStorage

	mu      sync.Mutex
	reads   int
	nth     int
	between func()
}

func (s *interleavedStorage) AccessToken(ctx context.Context) (string, error) {
	tok, err := s.MemoryStorage.AccessToken(ctx)

	s.mu.Lock()
	s.reads++
	var fn func()
	if s.reads == s.nth {
		fn, s.between = s.between, nil
	}
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
	return tok, err
}

func TestDo_RefreshFinishedBetweenCheckAndFlightIsNotRepeated(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	fb.refreshBody = `{"access_token":"T2","refresh_token":"R2"}`
	store := &interleavedStorage{MemoryStorage: seeded(t, "T1", "R1"), nth: 2}
	h := &hookRecorder{}
	g := newGateway(t, srv, store, h)

	// The second read is the stale-token check of the outer request. Another
	// request completes its whole refresh right after it.
	var innerErr error
	store.between = func() {
		innerErr = g.Do(context.Background(), Request{Path: "/users/me"}, nil)
	}

	require.NoError(t, g.Do(context.Background(), Request{Path: "/users/me"}, nil))
	require.NoError(t, innerErr)

	assert.EqualValues(t, 1, fb.refreshCalls.Load(), "the rotated refresh token must not be exchanged twice")
	assert.JSONEq(t, `{"refresh_token":"R1"}`, fb.lastRefreshReq)
	assert.Zero(t, h.expired)
	assert.Equal(t, [][2]string{{"T2", "R2"}}, h.refreshed)

	access, _ := store.AccessToken(context.Background())
	refresh, _ := store.RefreshToken(context.Background())
	assert.Equal(t, "T2", access)
	assert.Equal(t, "R2", refresh)
}

func TestDo_LogoutDuringRefreshIsNotUndone(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	fb.refreshBody = `{"access_token":"T2","refresh_token":"R2"}`
	store := seeded(t, "T1", "R1")
	h := &hookRecorder{}
	g := newGateway(t, srv, store, h)
	g.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == RefreshPath {
			_ = store.Clear(r.Context())
		}
		return http.DefaultTransport.RoundTrip(r)
	})}

	err := g.Do(context.Background(), Request{Path: "/users/me"}, nil)

	require.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 1, fb.protectedCalls.Load(), "no replay once the session is gone")
	assert.Empty(t, h.refreshed)
	assert.Zero(t, h.expired)

	access, _ := store.AccessToken(context.Background())
	refresh, _ := store.RefreshToken(context.Background())
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestDo_FailedRefreshKeepsNewerSession(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.setValidToken("T-current")
	fb.refreshStatus = http.StatusUnauthorized
	fb.refreshBody = `{"error":"Invalid or expired refresh token"}`
	store := seeded(t, "T1", "R1")
	h := &hookRecorder{}
	g := newGateway(t, srv, store, h)
	g.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == RefreshPath {
			// A fresh login lands while the old token is being refused.
			_ = store.SetTokens(r.Context(), "T9", "R9")
		}
		return http.DefaultTransport.RoundTrip(r)
	})}

	err := g.Do(context.Background(), Request{Path: "/users/me"}, nil)

	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, h.expired)
	access, _ := store.AccessToken(context.Background())
	refresh, _ := store.RefreshToken(context.Background())
	assert.Equal(t, "T9", access)
	assert.Equal(t, "R9", refresh)
}

func TestPing(t *testing.T) {
	_, srv := newFakeBackend(t)

	g := newGateway(t, srv, tokens.NewMemoryStorage(), &hookRecorder{})
	require.NoError(t, g.Ping(context.Background()))

	g = New(srv.URL, time.Second, tokens.NewMemoryStorage(), WithHealthURL(srv.URL+"/missing"))
	require.ErrorIs(t, g.Ping(context.Background()), ErrUnavailable)

	g = New(srv.URL, time.Second, tokens.NewMemoryStorage())
	require.ErrorIs(t, g.Ping(context.Background()), ErrUnavailable)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Invalid email or password", Message(&APIError{StatusCode: 401, Message: "Invalid email or password"}, "Login failed"))
	assert.Equal(t, "Login failed", Message(&APIError{StatusCode: 500}, "Login failed"))
	assert.Equal(t, "Login failed", Message(errors.New("dial tcp"), "Login failed"))
	assert.Equal(t, "api error 502: Bad Gateway", (&APIError{StatusCode: 502}).Error())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "sent", phaseSent.String())
	assert.Equal(t, "auth_failed", phaseAuthFailed.String())
	assert.Equal(t, "refreshing", phaseRefreshing.String())
	assert.Equal(t, "replayed", phaseReplayed.String())
	assert.Equal(t, "done", phaseDone.String())
	assert.Equal(t, "unknown", phase(42).String())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
