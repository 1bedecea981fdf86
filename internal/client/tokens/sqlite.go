package tokens

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jay/dadmail-client/internal/client/repositories/metadata"
	"github.com/jay/dadmail-client/internal/common"
	"github.com/jay/dadmail-client/internal/cryptox"
	"github.com/jay/dadmail-client/internal/dbx"
)

// SQLiteStorage persists tokens in the metadata table under the session
// namespace, sealed with the configured Sealer. Writes are serialized so the
// compare-and-set operations are atomic within the process.
type SQLiteStorage struct {
	db     *sql.DB
	repo   *metadata.SQLiteRepository
	sealer cryptox.Sealer

	mu sync.Mutex
}

func NewSQLiteStorage(db *sql.DB, sealer cryptox.Sealer) *SQLiteStorage {
	if sealer == nil {
		sealer = cryptox.PlainSealer{}
	}
	return &SQLiteStorage{
		db:     db,
		repo:   metadata.NewSQLiteRepository(db, common.SessionNamespace),
		sealer: sealer,
	}
}

func (s *SQLiteStorage) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, s.repo, AccessTokenKey)
}

func (s *SQLiteStorage) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, s.repo, RefreshTokenKey)
}

func (s *SQLiteStorage) SetAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, s.repo, AccessTokenKey, token)
}

// SetTokens writes both tokens in one transaction.
func (s *SQLiteStorage) SetTokens(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.putPair(ctx, s.repo.WithTx(tx), access, refresh)
	})
}

func (s *SQLiteStorage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Delete(ctx, AccessTokenKey, RefreshTokenKey)
}

func (s *SQLiteStorage) CompareAndSwap(ctx context.Context, prev, access, refresh string) (bool, error) {
	return s.compareAnd(ctx, prev, func(ctx context.Context, repo *metadata.SQLiteRepository) error {
		return s.putPair(ctx, repo, access, refresh)
	})
}

func (s *SQLiteStorage) CompareAndClear(ctx context.Context, prev string) (bool, error) {
	return s.compareAnd(ctx, prev, func(ctx context.Context, repo *metadata.SQLiteRepository) error {
		return repo.Delete(ctx, AccessTokenKey, RefreshTokenKey)
	})
}

// compareAnd runs write in a transaction when the stored refresh token
// equals prev.
func (s *SQLiteStorage) compareAnd(ctx context.Context, prev string, write func(context.Context, *metadata.SQLiteRepository) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo.WithTx(tx)
		current, err := s.get(ctx, repo, RefreshTokenKey)
		if err != nil {
			return err
		}
		if current != prev {
			return nil
		}
		matched = true
		return write(ctx, repo)
	})
	if err != nil {
		return false, err
	}
	return matched, nil
}

func (s *SQLiteStorage) putPair(ctx context.Context, repo metadata.Repository, access, refresh string) error {
	if err := s.put(ctx, repo, AccessTokenKey, access); err != nil {
		return err
	}
	return s.put(ctx, repo, RefreshTokenKey, refresh)
}

func (s *SQLiteStorage) get(ctx context.Context, repo metadata.Repository, key string) (string, error) {
	raw, err := repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", nil
	}
	plain, err := s.sealer.Open(raw)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", key, err)
	}
	return string(plain), nil
}

func (s *SQLiteStorage) put(ctx context.Context, repo metadata.Repository, key, token string) error {
	if token == "" {
		return repo.Delete(ctx, key)
	}
	sealed, err := s.sealer.Seal([]byte(token))
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return repo.Set(ctx, key, sealed)
}
