package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// redisKeyPrefix namespaces user cache entries in a shared redis instance.
const redisKeyPrefix = "im:user:"

// redisCache is a UserCache backed by redis, for deployments where several
// processes share one user cache. Local singleflight keeps one process from
// issuing duplicate store fetches; cross-process stampedes are bounded by
// the cache TTL.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewRedisCache creates a redis-backed UserCache.
//
// Parameters:
//   - client: The redis client to use
//   - ttl: How long a cached user stays valid
//
// Returns:
//   - A ready-to-use UserCache
func NewRedisCache(client *redis.Client, ttl time.Duration) UserCache {
	return &redisCache{
		client: client,
		ttl:    ttl,
	}
}

// GetOrFetch implements UserCache.
func (c *redisCache) GetOrFetch(ctx context.Context, username string, fetch FetchFunc) (User, error) {
	key := redisKeyPrefix + username

	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var user User
		if err := json.Unmarshal([]byte(val), &user); err != nil {
			return User{}, fmt.Errorf("unmarshal cached user: %w", err)
		}

		return user, nil
	}

	if !errors.Is(err, redis.Nil) {
		return User{}, fmt.Errorf("redis get: %w", err)
	}

	result, err, _ := c.group.Do(username, func() (interface{}, error) {
		user, err := fetch(ctx)
		if err != nil {
			return User{}, err
		}

		data, err := json.Marshal(user)
		if err != nil {
			return User{}, fmt.Errorf("marshal user: %w", err)
		}

		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			return User{}, fmt.Errorf("redis set: %w", err)
		}

		return user, nil
	})
	if err != nil {
		return User{}, err
	}

	user, ok := result.(User)
	if !ok {
		return User{}, fmt.Errorf("unexpected cache value for user %q", username)
	}

	return user, nil
}

// Delete implements UserCache.
func (c *redisCache) Delete(ctx context.Context, username string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+username).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}
