package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jay/dadmail-client/internal/client/repositories/metadata"
	"github.com/jay/dadmail-client/internal/common"
	"github.com/jay/dadmail-client/internal/cryptox"
)

const saltKey = "salt"

// NewSealer returns the sealer for locally stored secrets. Without a secret
// values are stored as-is. With one, the key is derived from the secret and
// a per-database salt kept in the keyring namespace, created on first use.
func NewSealer(ctx context.Context, db *sql.DB, secret string) (cryptox.Sealer, error) {
	if secret == "" {
		return cryptox.PlainSealer{}, nil
	}

	keyring := metadata.NewSQLiteRepository(db, common.KeyringNamespace)
	salt, err := keyring.Get(ctx, saltKey)
	if err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		if salt, err = cryptox.NewSalt(); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		if err := keyring.Set(ctx, saltKey, salt); err != nil {
			return nil, err
		}
	}

	return cryptox.NewAESSealer(cryptox.DeriveKey([]byte(secret), salt))
}
