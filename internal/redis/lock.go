package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Acquire takes a lease on key for ttl. ok is false when someone else holds it.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	lockKey := c.key("lock", key)
	token := uuid.NewString()

	ok, err := c.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, c, []string{lockKey}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
