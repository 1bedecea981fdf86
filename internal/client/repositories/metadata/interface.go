// Package metadata is the client's namespaced key/value store. The session
// store and the token storage both persist through it.
package metadata

import "context"

// Repository is bound to a single namespace. Get returns (nil, nil) for an
// absent key and a non-nil empty slice for a key stored with no value.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}
