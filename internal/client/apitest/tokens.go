package apitest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jay/dadmail-client/internal/client/models"
	"github.com/jay/dadmail-client/internal/common"
)

const (
	accessTTL        = 15 * time.Minute
	refreshTokenSize = 32
)

var errStaleGeneration = errors.New("token generation expired")

type ctxKey struct{}

// issueLocked mints an access token and opens a new refresh session for acc.
func (s *Server) issueLocked(acc *account) (models.AuthResponse, error) {
	access, err := s.accessTokenLocked(acc)
	if err != nil {
		return models.AuthResponse{}, err
	}
	refresh, err := common.MakeRandHexString(refreshTokenSize)
	if err != nil {
		return models.AuthResponse{}, err
	}
	s.sessions[refresh] = acc.user.ID
	return models.AuthResponse{AccessToken: access, RefreshToken: refresh, User: acc.user}, nil
}

func (s *Server) accessTokenLocked(acc *account) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   acc.user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTTL)),
		},
		UserID:     acc.user.ID,
		Email:      acc.user.Email,
		Role:       acc.user.Role,
		Generation: s.generation,
	})
	return token.SignedString(s.secret)
}

func (s *Server) parseAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Generation != s.generation {
		return nil, errStaleGeneration
	}
	return claims, nil
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}
		claims, err := s.parseAccessToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims.UserID)))
	})
}

// accountFromLocked returns the account of the authenticated caller. The caller
// must hold s.mu.
func (s *Server) accountFromLocked(r *http.Request) (*account, bool) {
	id, _ := r.Context().Value(ctxKey{}).(string)
	acc, ok := s.byID[id]
	return acc, ok
}
