package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/miladsoleymani/eventcast/core"
)

// CachedAuthorizer remembers successful authorizations per socket and
// channel and collapses concurrent requests for the same pair.
type CachedAuthorizer struct {
	next  core.Authorizer
	ttl   time.Duration
	cache *ristretto.Cache[string, core.Auth]
	group singleflight.Group
}

var _ core.Authorizer = (*CachedAuthorizer)(nil)

// Cached wraps next with a TTL cache. Failures are never cached.
func Cached(next core.Authorizer, ttl time.Duration) (*CachedAuthorizer, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, core.Auth]{
		NumCounters:        10_000,
		MaxCost:            1_000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("eventcast/auth: create cache: %w", err)
	}
	return &CachedAuthorizer{next: next, ttl: ttl, cache: c}, nil
}

func (a *CachedAuthorizer) Authorize(ctx context.Context, socketID, channel string) (core.Auth, error) {
	key := socketID + "|" + channel
	if v, ok := a.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		out, err := a.next.Authorize(ctx, socketID, channel)
		if err != nil {
			return core.Auth{}, err
		}
		a.cache.SetWithTTL(key, out, 1, a.ttl)
		a.cache.Wait()
		return out, nil
	})
	if err != nil {
		return core.Auth{}, err
	}
	return v.(core.Auth), nil
}

// Forget drops the cached authorization for one channel.
func (a *CachedAuthorizer) Forget(socketID, channel string) {
	a.cache.Del(socketID + "|" + channel)
}

// Close releases the cache.
func (a *CachedAuthorizer) Close() {
	a.cache.Close()
}
