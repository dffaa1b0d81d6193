package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LinkCacheInterface is the fast-path lookup of short code to target URL.
// Get reports a miss with ok=false; a miss is not an error.
type LinkCacheInterface interface {
	Get(ctx context.Context, code string) (string, bool, error)
	Set(ctx context.Context, code string, targetURL string, ttl time.Duration) error
	Delete(ctx context.Context, code string) error
}

type LinkCache struct {
	client *redis.Client
}

func NewLinkCache(client *redis.Client) *LinkCache {
	return &LinkCache{client: client}
}

func (c *LinkCache) Get(ctx context.Context, code string) (string, bool, error) {
	key := "link:" + code
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *LinkCache) Set(ctx context.Context, code string, targetURL string, ttl time.Duration) error {
	key := "link:" + code
	return c.client.Set(ctx, key, targetURL, ttl).Err()
}

func (c *LinkCache) Delete(ctx context.Context, code string) error {
	key := "link:" + code
	return c.client.Del(ctx, key).Err()
}
