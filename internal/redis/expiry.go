package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimDueScript pops up to ARGV[2] members scored at or below ARGV[1]
var claimDueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
if #due > 0 then
	redis.call('ZREM', KEYS[1], unpack(due))
end
return due
`)

func (c *Client) expiryKey() string { return c.key("expiry", "sessions") }

// Schedule arms (or re-arms) the abandon check of a session
func (c *Client) Schedule(ctx context.Context, hash string, at time.Time) error {
	err := c.ZAdd(ctx, c.expiryKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: hash,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule expiry for %s: %w", hash, err)
	}
	return nil
}

// ClaimDue atomically removes and returns sessions whose check is due at now.
// A claimed session belongs to the caller; other workers will not see it.
func (c *Client) ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	res, err := claimDueScript.Run(ctx, c, []string{c.expiryKey()},
		strconv.FormatInt(now.UnixMilli(), 10), limit).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to claim due expiries: %w", err)
	}
	return res, nil
}

// FireTime returns when a session's check is armed
func (c *Client) FireTime(ctx context.Context, hash string) (time.Time, bool, error) {
	score, err := c.ZScore(ctx, c.expiryKey(), hash).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read expiry for %s: %w", hash, err)
	}
	return time.UnixMilli(int64(score)).UTC(), true, nil
}

// PendingExpiries returns the number of armed checks
func (c *Client) PendingExpiries(ctx context.Context) (int64, error) {
	n, err := c.ZCard(ctx, c.expiryKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count expiries: %w", err)
	}
	return n, nil
}
