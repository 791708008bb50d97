package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads a user from the store on a cache miss.
type FetchFunc func(ctx context.Context) (User, error)

// UserCache caches user lookups keyed by username. Implementations must be
// safe for concurrent use and must not cache failed lookups.
type UserCache interface {
	// GetOrFetch returns the cached user for username, or runs fetch, caches
	// its result, and returns it. Concurrent misses for the same username
	// trigger a single fetch.
	GetOrFetch(ctx context.Context, username string, fetch FetchFunc) (User, error)

	// Delete evicts the cached entry for username, if any.
	Delete(ctx context.Context, username string) error
}

// memoryCache is the in-process UserCache backed by go-cache, with
// singleflight preventing duplicate store fetches under concurrent misses.
type memoryCache struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCache creates an in-memory UserCache.
//
// Parameters:
//   - ttl: How long a cached user stays valid
//   - cleanupInterval: How often expired entries are purged
//
// Returns:
//   - A ready-to-use UserCache
func NewMemoryCache(ttl, cleanupInterval time.Duration) UserCache {
	return &memoryCache{
		cache: cache.New(ttl, cleanupInterval),
	}
}

// GetOrFetch implements UserCache.
func (c *memoryCache) GetOrFetch(ctx context.Context, username string, fetch FetchFunc) (User, error) {
	if val, found := c.cache.Get(username); found {
		if user, ok := val.(User); ok {
			return user, nil
		}
	}

	val, err, _ := c.group.Do(username, func() (interface{}, error) {
		// Another goroutine may have populated the cache while we waited
		// for the singleflight slot.
		if cached, found := c.cache.Get(username); found {
			if user, ok := cached.(User); ok {
				return user, nil
			}
		}

		user, err := fetch(ctx)
		if err != nil {
			return User{}, err
		}

		c.cache.SetDefault(username, user)
		return user, nil
	})
	if err != nil {
		return User{}, err
	}

	user, ok := val.(User)
	if !ok {
		return User{}, fmt.Errorf("unexpected cache value for user %q", username)
	}

	return user, nil
}

// Delete implements UserCache.
func (c *memoryCache) Delete(ctx context.Context, username string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.cache.Delete(username)
	return nil
}
