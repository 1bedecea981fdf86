// Package api holds thin typed wrappers over the backend endpoints. Every
// call goes through a Doer, in production the request gateway.
package api

import (
	"context"

	"github.com/jay/dadmail-client/internal/client/gateway"
)

// Doer sends a backend request and decodes the response into out.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}
