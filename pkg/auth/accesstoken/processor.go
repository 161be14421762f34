// Package accesstoken resolves opaque OAuth access tokens by asking the
// issuing provider who they belong to, and caches resolved tokens.
package accesstoken

import (
	"context"
	"time"

	"github.com/marmos91/extauth/pkg/credentials"
)

// DefaultCacheInvalidationInterval is how long a resolved token is reused
// when the provider does not declare an earlier expiry.
const DefaultCacheInvalidationInterval = 60 * time.Minute

// Processor resolves and validates access tokens issued by one provider.
//
// ResolveAndValidate populates tok with the resolved identity and returns
// true on success. A rejected token returns false with an error wrapping
// autherr.ErrAuthenticationFailed; an unreachable provider returns an
// error wrapping autherr.ErrTransientIO.
type Processor interface {
	Name() string
	Provider() string
	CacheInvalidationInterval() time.Duration
	ResolveAndValidate(ctx context.Context, tok *credentials.Token) (bool, error)
}
