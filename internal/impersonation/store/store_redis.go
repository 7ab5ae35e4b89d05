package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/internal/impersonation/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

const keyPrefix = "warden:impersonation:"

// RedisStore shares contexts across instances. The key TTL is the context expiry.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func key(adminID id.SubjectID) string {
	return keyPrefix + adminID.String()
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, c *models.Context) error {
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("put impersonation context: non-positive ttl")
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode impersonation context: %w", err)
	}
	ok, err := s.client.SetNX(ctx, key(c.AdminID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("put impersonation context: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Replace(ctx context.Context, c *models.Context) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode impersonation context: %w", err)
	}
	res, err := s.client.SetArgs(ctx, key(c.AdminID), payload, redis.SetArgs{Mode: "XX", KeepTTL: true}).Result()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("replace impersonation context: %w", err)
	}
	if res != "OK" {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, adminID id.SubjectID) (*models.Context, error) {
	payload, err := s.client.Get(ctx, key(adminID)).Bytes()
	return decode(payload, err)
}

// Take uses GETDEL so only one caller observes the context.
func (s *RedisStore) Take(ctx context.Context, adminID id.SubjectID) (*models.Context, error) {
	payload, err := s.client.GetDel(ctx, key(adminID)).Bytes()
	return decode(payload, err)
}

func decode(payload []byte, err error) (*models.Context, error) {
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read impersonation context: %w", err)
	}
	var c models.Context
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("decode impersonation context: %w", err)
	}
	return &c, nil
}
