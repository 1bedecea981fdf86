// Package tokens is the single token-storage capability shared by the
// session store and the request gateway. Both receive the same Storage at
// construction; writes are last-writer-wins.
package tokens

import (
	"context"
	"sync"
)

// Keys under which tokens are persisted.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// Storage reads and writes the persisted token pair. An absent token is
// reported as "".
type Storage interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SetAccessToken(ctx context.Context, token string) error
	SetTokens(ctx context.Context, access, refresh string) error
	Clear(ctx context.Context) error

	// CompareAndSwap writes the pair only while the stored refresh token is
	// still prev, and reports whether it did.
	CompareAndSwap(ctx context.Context, prev, access, refresh string) (bool, error)
	// CompareAndClear clears both tokens only while the stored refresh token
	// is still prev, and reports whether it did.
	CompareAndClear(ctx context.Context, prev string) (bool, error)
}

// MemoryStorage keeps tokens for the lifetime of the process.
type MemoryStorage struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) AccessToken(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access, nil
}

func (m *MemoryStorage) RefreshToken(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refresh, nil
}

func (m *MemoryStorage) SetAccessToken(_ context.Context, token string) error {
	m.mu.Lock()
	m.access = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) SetTokens(_ context.Context, access, refresh string) error {
	m.mu.Lock()
	m.access, m.refresh = access, refresh
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Clear(context.Context) error {
	m.mu.Lock()
	m.access, m.refresh = "", ""
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) CompareAndSwap(_ context.Context, prev, access, refresh string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refresh != prev {
		return false, nil
	}
	m.access, m.refresh = access, refresh
	return true, nil
}

func (m *MemoryStorage) CompareAndClear(_ context.Context, prev string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refresh != prev {
		return false, nil
	}
	m.access, m.refresh = "", ""
	return true, nil
}
