package challenge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/internal/ceremony/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

const keyPrefix = "warden:challenge:"

// consumeScript deletes the challenge hash only when purpose and subject
// scope match, returning its fields. Expiry is enforced by the key TTL.
var consumeScript = redis.NewScript(`
local fields = redis.call('HMGET', KEYS[1], 'purpose', 'subject', 'label', 'created_at', 'expires_at', 'session')
if not fields[1] then
  return false
end
if fields[1] ~= ARGV[1] then
  return false
end
local subject = fields[2] or ''
if subject == '' then
  if ARGV[3] == '1' then
    return false
  end
elseif ARGV[2] ~= '' and subject ~= ARGV[2] then
  return false
end
redis.call('DEL', KEYS[1])
return fields
`)

var saveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'purpose', ARGV[1], 'subject', ARGV[2], 'label', ARGV[3], 'created_at', ARGV[4], 'expires_at', ARGV[5], 'session', ARGV[7])
redis.call('PEXPIREAT', KEYS[1], ARGV[6])
return 1
`)

// RedisStore holds each challenge as a hash whose TTL is the challenge expiry.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, c *models.Challenge) error {
	if !c.ExpiresAt.After(c.CreatedAt) {
		return fmt.Errorf("save challenge: non-positive ttl")
	}
	subject := ""
	if !c.SubjectID.IsNil() {
		subject = c.SubjectID.String()
	}
	session, err := encodeSession(c.Session)
	if err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	created, err := saveScript.Run(ctx, s.client, []string{keyPrefix + c.Value},
		string(c.Purpose), subject, c.Label,
		strconv.FormatInt(c.CreatedAt.UnixNano(), 10),
		strconv.FormatInt(c.ExpiresAt.UnixNano(), 10),
		c.ExpiresAt.UnixMilli(),
		string(session),
	).Int()
	if err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	if created == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, req models.ConsumeRequest) (*models.Challenge, error) {
	subject := ""
	if !req.SubjectID.IsNil() {
		subject = req.SubjectID.String()
	}
	requireSubject := "0"
	if req.RequireSubject {
		requireSubject = "1"
	}
	res, err := consumeScript.Run(ctx, s.client, []string{keyPrefix + req.Value},
		string(req.Purpose), subject, requireSubject).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	c, err := decodeChallenge(req.Value, res)
	if err != nil {
		return nil, err
	}
	// The TTL is millisecond-precise; a caller clock slightly ahead still wins.
	if c.IsExpired(req.Now) {
		return nil, sentinel.ErrNotFound
	}
	return c, nil
}

// DeleteExpired is a no-op: Redis evicts challenges at their TTL.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func decodeChallenge(value string, fields []any) (*models.Challenge, error) {
	if len(fields) != 6 {
		return nil, fmt.Errorf("consume challenge: unexpected reply of %d fields", len(fields))
	}
	str := func(i int) string {
		s, _ := fields[i].(string)
		return s
	}
	c := &models.Challenge{Value: value, Purpose: models.Purpose(str(0)), Label: str(2)}
	if raw := str(1); raw != "" {
		subjectID, err := id.ParseSubjectID(raw)
		if err != nil {
			return nil, fmt.Errorf("consume challenge: %w", err)
		}
		c.SubjectID = subjectID
	}
	created, err := strconv.ParseInt(str(3), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("consume challenge: created_at: %w", err)
	}
	expires, err := strconv.ParseInt(str(4), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("consume challenge: expires_at: %w", err)
	}
	c.CreatedAt = time.Unix(0, created)
	c.ExpiresAt = time.Unix(0, expires)
	if c.Session, err = decodeSession([]byte(str(5))); err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	return c, nil
}
