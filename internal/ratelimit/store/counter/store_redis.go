package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/internal/ratelimit/models"
)

const keyPrefix = "warden:ratelimit:"

// incrementScript starts the window on the first hit; the key TTL is the
// window so an expired counter simply no longer exists.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (*models.Counter, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{keyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("increment rate limit counter: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("increment rate limit counter: unexpected reply %v", res)
	}
	return &models.Counter{
		Key:             key,
		Count:           int(res[0]),
		WindowExpiresAt: now.Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit counter: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: redis expires counters itself.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
