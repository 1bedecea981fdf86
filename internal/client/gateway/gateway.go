// Package gateway is the single chokepoint for backend calls. It attaches
// the stored access token, and on a 401 performs at most one token refresh
// followed by exactly one replay of the failed request.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jay/dadmail-client/internal/client/models"
	"github.com/jay/dadmail-client/internal/client/tokens"
	"github.com/jay/dadmail-client/internal/common"
	"github.com/jay/dadmail-client/internal/logging"
	"golang.org/x/sync/singleflight"
)

const (
	RefreshPath = "/auth/refresh"

	maxBodySize = 8 << 20
)

// Request describes a backend call relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// NoRefresh returns a 401 as-is. Login and register set it so a
	// rejected password is not mistaken for an expired token.
	NoRefresh bool
}

// Hooks let the owner of the session observe refresh outcomes without the
// gateway depending on it.
type Hooks struct {
	// OnRefreshed runs after new tokens have been persisted.
	OnRefreshed func(ctx context.Context, access, refresh string)
	// OnSessionExpired runs after a failed refresh cleared the stored
	// tokens. The caller should send the user back to the login screen.
	OnSessionExpired func(ctx context.Context)
}

type Gateway struct {
	baseURL   string
	healthURL string
	client    *http.Client
	tokens    tokens.Storage
	hooks     Hooks
	log       logging.Logger
	flight    singleflight.Group
	newID     func() string
}

type Option func(*Gateway)

// WithHTTPClient replaces the default client. Its Timeout still bounds
// every request.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

func WithLogger(l logging.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

func WithHooks(h Hooks) Option {
	return func(g *Gateway) { g.hooks = h }
}

// WithHealthURL sets the absolute URL probed by Ping.
func WithHealthURL(u string) Option {
	return func(g *Gateway) { g.healthURL = u }
}

// New returns a Gateway for baseURL. timeout bounds each HTTP round trip.
func New(baseURL string, timeout time.Duration, store tokens.Storage, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  store,
		log:     logging.Nop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do sends req and decodes a 2xx JSON body into out (which may be nil).
//
// A 401 triggers the refresh path unless req.NoRefresh is set. When no
// refresh token is stored, or the refresh fails, the original 401 is
// returned. After a successful refresh the request is replayed once and the
// replay's outcome is returned whatever it is.
func (g *Gateway) Do(ctx context.Context, req Request, out any) error {
	x, err := g.newExchange(req, "")
	if err != nil {
		return err
	}

	token, err := g.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}

	resp, err := g.send(ctx, x, token)
	if err != nil {
		x.advance(ctx, phaseDone)
		return err
	}
	if resp.status != http.StatusUnauthorized || req.NoRefresh {
		x.advance(ctx, phaseDone)
		return resp.decode(out)
	}

	x.advance(ctx, phaseAuthFailed)
	original := resp.apiError()

	fresh, err := g.refresh(ctx, x, token)
	if err != nil {
		x.log.Info(ctx, "request not replayed", "reason", err.Error())
		x.advance(ctx, phaseDone)
		return original
	}

	x.advance(ctx, phaseReplayed)
	resp, err = g.send(ctx, x, fresh)
	x.advance(ctx, phaseDone)
	if err != nil {
		return err
	}
	return resp.decode(out)
}

// Ping probes the health URL.
func (g *Gateway) Ping(ctx context.Context) error {
	if g.healthURL == "" {
		return fmt.Errorf("%w: no health url configured", ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: health check returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// newExchange prepares req for sending. An empty id gets a fresh one.
func (g *Gateway) newExchange(req Request, id string) (*exchange, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if id == "" {
		id = g.newID()
	}
	x := &exchange{id: id, req: req}
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", req.Method, req.Path, err)
		}
		x.body = b
	}
	x.log = g.log.With("request_id", x.id, "method", req.Method, "path", req.Path)
	return x, nil
}

// refresh returns an access token to replay with. stale is the token the
// failed request carried.
func (g *Gateway) refresh(ctx context.Context, x *exchange, stale string) (string, error) {
	refreshToken, err := g.tokens.RefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if refreshToken == "" {
		return "", errNoRefreshToken
	}

	if current, ok, err := g.refreshedSince(ctx, stale, refreshToken); err != nil || ok {
		if ok {
			x.log.Debug(ctx, "access token already refreshed")
		}
		return current, err
	}

	x.advance(ctx, phaseRefreshing)
	v, err, shared := g.flight.Do(refreshToken, func() (any, error) {
		// A flight for the same token may have finished after the check
		// above; its rotation makes refreshToken unusable.
		if current, ok, err := g.refreshedSince(ctx, stale, refreshToken); err != nil || ok {
			return current, err
		}
		// Detached so one caller's cancellation cannot log everybody out.
		return g.exchangeRefreshToken(context.WithoutCancel(ctx), x.id, refreshToken)
	})
	if shared {
		x.log.Debug(ctx, "joined in-flight refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refreshedSince reports whether the stored tokens moved on from the pair a
// request was sent with, and returns the access token to replay with if so.
func (g *Gateway) refreshedSince(ctx context.Context, stale, refreshToken string) (string, bool, error) {
	storedRefresh, err := g.tokens.RefreshToken(ctx)
	if err != nil {
		return "", false, fmt.Errorf("read refresh token: %w", err)
	}
	if storedRefresh == "" {
		return "", false, errSessionEnded
	}
	current, err := g.tokens.AccessToken(ctx)
	if err != nil {
		return "", false, fmt.Errorf("read access token: %w", err)
	}
	if storedRefresh == refreshToken && (current == "" || current == stale) {
		return "", false, nil
	}
	if current == "" {
		return "", false, errSessionEnded
	}
	return current, true, nil
}

// exchangeRefreshToken calls the refresh endpoint directly, bypassing the
// 401 handling in Do. Results are applied only while refreshToken is still
// the stored one.
func (g *Gateway) exchangeRefreshToken(ctx context.Context, id, refreshToken string) (string, error) {
	x, err := g.newExchange(Request{
		Method: http.MethodPost,
		Path:   RefreshPath,
		Body:   models.RefreshRequest{RefreshToken: refreshToken},
	}, id)
	if err != nil {
		return "", err
	}

	var rr models.RefreshResponse
	resp, err := g.send(ctx, x, "")
	if err == nil {
		err = resp.decode(&rr)
	}
	if err == nil && rr.AccessToken == "" {
		err = errEmptyAccessToken
	}
	if err != nil {
		g.expire(ctx, refreshToken, err)
		return "", err
	}

	rotated := rr.RefreshToken
	if rotated == "" {
		rotated = refreshToken
	}
	swapped, err := g.tokens.CompareAndSwap(ctx, refreshToken, rr.AccessToken, rotated)
	if err != nil {
		return "", fmt.Errorf("persist refreshed tokens: %w", err)
	}
	if !swapped {
		g.log.Info(ctx, "session changed during refresh, discarding new tokens", "request_id", id)
		return "", errSessionEnded
	}

	g.log.Info(ctx, "access token refreshed", "request_id", id, "access_token", common.MaskToken(rr.AccessToken))
	if g.hooks.OnRefreshed != nil {
		g.hooks.OnRefreshed(ctx, rr.AccessToken, rotated)
	}
	return rr.AccessToken, nil
}

// expire clears the session after refreshToken was rejected, unless the
// stored pair has moved on since.
func (g *Gateway) expire(ctx context.Context, refreshToken string, cause error) {
	cleared, err := g.tokens.CompareAndClear(ctx, refreshToken)
	if err != nil {
		g.log.Error(ctx, "clear tokens", "error", err)
		return
	}
	if !cleared {
		g.log.Info(ctx, "token refresh failed for a superseded session", "error", cause)
		return
	}
	g.log.Warn(ctx, "token refresh failed, clearing session", "error", cause)
	if g.hooks.OnSessionExpired != nil {
		g.hooks.OnSessionExpired(ctx)
	}
}

func (g *Gateway) send(ctx context.Context, x *exchange, token string) (*response, error) {
	target := g.baseURL + x.req.Path
	if len(x.req.Query) > 0 {
		target += "?" + x.req.Query.Encode()
	}

	var body io.Reader
	if x.body != nil {
		body = bytes.NewReader(x.body)
	}
	req, err := http.NewRequestWithContext(ctx, x.req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", x.req.Method, x.req.Path, err)
	}
	req.Header.Set("Accept", "application/json")
	if x.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(common.RequestIDHeader, x.id)
	if token != "" {
		req.Header.Set(common.AuthorizationHeader, common.BearerValue(token))
	}

	x.sends++
	started := time.Now()
	httpResp, err := g.client.Do(req)
	if err != nil {
		x.log.Warn(ctx, "request failed", "error", err, "elapsed", time.Since(started))
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, x.req.Method, x.req.Path, err)
	}
	defer httpResp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", ErrUnavailable, x.req.Method, x.req.Path, err)
	}
	x.log.Debug(ctx, "response received", "status", httpResp.StatusCode, "attempt", x.sends, "elapsed", time.Since(started))

	return &response{status: httpResp.StatusCode, body: b, path: x.req.Path}, nil
}

type response struct {
	status int
	body   []byte
	path   string
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status <= 299
}

func (r *response) decode(out any) error {
	if !r.ok() {
		return r.apiError()
	}
	if out == nil || len(bytes.TrimSpace(r.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.path, err)
	}
	return nil
}

func (r *response) apiError() error {
	apiErr := &APIError{StatusCode: r.status}
	var eb models.ErrorBody
	if err := json.Unmarshal(r.body, &eb); err == nil {
		apiErr.Message = eb.Error
		if apiErr.Message == "" {
			apiErr.Message = eb.Message
		}
		apiErr.Code = eb.Code
	}
	return apiErr
}

// IsUnavailable reports whether err is a transport failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
