package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "session:v1:"

// rotateScript returns -1 for unknown families, -2 for revoked ones and -3 when the
// presented refresh id is stale (the family is revoked as a side effect).
var rotateScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
  return -1
end
if redis.call('HGET', key, 'revoked') == '1' then
  return -2
end
if redis.call('HGET', key, 'refresh_jti') ~= ARGV[1] then
  redis.call('HSET', key, 'revoked', '1')
  return -3
end
redis.call('HSET', key, 'refresh_jti', ARGV[2], 'expires_at', ARGV[3])
redis.call('PEXPIREAT', key, ARGV[3])
return 1
`)

var revokeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'revoked', '1')
return 1
`)

// RedisStore keeps one hash per session family, expiring with the refresh token.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func familyKey(id string) string {
	return sessionPrefix + id
}

// Create stores a new family.
func (s *RedisStore) Create(ctx context.Context, f Family) error {
	key := familyKey(f.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", f.UserID,
		"username", f.Username,
		"role", f.Role,
		"refresh_jti", f.RefreshJTI,
		"revoked", "0",
		"expires_at", f.ExpiresAt.UnixMilli(),
	)
	pipe.PExpireAt(ctx, key, f.ExpiresAt)
	_, err := pipe.Exec(ctx)
	return err
}

// Get loads a family.
func (s *RedisStore) Get(ctx context.Context, id string) (Family, error) {
	vals, err := s.client.HGetAll(ctx, familyKey(id)).Result()
	if err != nil {
		return Family{}, err
	}
	if len(vals) == 0 {
		return Family{}, ErrInvalid
	}
	return decodeFamily(id, vals)
}

// Rotate runs the rotation atomically inside Redis.
func (s *RedisStore) Rotate(ctx context.Context, id, presented, next string, expiresAt time.Time) (Family, error) {
	res, err := rotateScript.Run(ctx, s.client, []string{familyKey(id)}, presented, next, expiresAt.UnixMilli()).Int()
	if err != nil {
		return Family{}, err
	}
	switch res {
	case 1:
		return s.Get(ctx, id)
	case -3:
		return Family{}, ErrReused
	default:
		return Family{}, ErrInvalid
	}
}

// Revoke marks the family revoked; its tokens stop validating immediately.
func (s *RedisStore) Revoke(ctx context.Context, id string) error {
	res, err := revokeScript.Run(ctx, s.client, []string{familyKey(id)}).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrInvalid
	}
	return nil
}

func decodeFamily(id string, vals map[string]string) (Family, error) {
	var ms int64
	if raw := vals["expires_at"]; raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Family{}, fmt.Errorf("decode session expiry: %w", err)
		}
		ms = parsed
	}
	f := Family{
		ID:         id,
		UserID:     vals["user_id"],
		Username:   vals["username"],
		Role:       vals["role"],
		RefreshJTI: vals["refresh_jti"],
		Revoked:    vals["revoked"] == "1",
		ExpiresAt:  time.UnixMilli(ms).UTC(),
	}
	if f.UserID == "" {
		return Family{}, errors.New("corrupt session record")
	}
	return f, nil
}
