package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
	"github.com/redis/go-redis/v9"
)

const (
	refreshKeyPrefix   = "refreshToken:"
	challengeKeyPrefix = "captcha:"
)

const consumeScript = `
local v = redis.call("GET", KEYS[1])
if v and v == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`

const swapScript = `
local v = redis.call("GET", KEYS[1])
if not v then
  return -1
end
if v ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`

var (
	consumeLua = redis.NewScript(consumeScript)
	swapLua    = redis.NewScript(swapScript)
)

// RedisRefreshStore is a Redis implementation of the RefreshRecordStore interface
type RedisRefreshStore struct {
	client redis.UniversalClient
}

var _ ports.RefreshRecordStore = (*RedisRefreshStore)(nil)

// NewRedisRefreshStore creates a new Redis refresh record store
func NewRedisRefreshStore(client redis.UniversalClient) *RedisRefreshStore {
	return &RedisRefreshStore{client: client}
}

// Put overwrites the refresh record for a principal
func (s *RedisRefreshStore) Put(ctx context.Context, principalID, refreshToken string, ttl time.Duration) error {
	if err := s.client.Set(ctx, refreshKeyPrefix+principalID, refreshToken, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh record: %w", err)
	}
	return nil
}

// Get returns the current refresh token for a principal
func (s *RedisRefreshStore) Get(ctx context.Context, principalID string) (string, error) {
	value, err := s.client.Get(ctx, refreshKeyPrefix+principalID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", core.ErrRefreshRecordAbsent
		}
		return "", fmt.Errorf("failed to load refresh record: %w", err)
	}
	return value, nil
}

// Delete removes the refresh record for a principal
func (s *RedisRefreshStore) Delete(ctx context.Context, principalID string) error {
	if err := s.client.Del(ctx, refreshKeyPrefix+principalID).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh record: %w", err)
	}
	return nil
}

// CompareAndSwap rotates the refresh record in a single script call
func (s *RedisRefreshStore) CompareAndSwap(ctx context.Context, principalID, current, next string, ttl time.Duration) error {
	keys := []string{refreshKeyPrefix + principalID}
	res, err := swapLua.Run(ctx, s.client, keys, current, next, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to rotate refresh record: %w", err)
	}

	switch res {
	case 1:
		return nil
	case 0:
		return core.ErrRefreshTokenMismatch
	default:
		return core.ErrRefreshRecordAbsent
	}
}

// RedisChallengeStore is a Redis implementation of the ChallengeStore interface
type RedisChallengeStore struct {
	client redis.UniversalClient
}

var _ ports.ChallengeStore = (*RedisChallengeStore)(nil)

// NewRedisChallengeStore creates a new Redis challenge store
func NewRedisChallengeStore(client redis.UniversalClient) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

// Save stores a challenge answer with its TTL
func (s *RedisChallengeStore) Save(ctx context.Context, sessionID, answer string, ttl time.Duration) error {
	if err := s.client.Set(ctx, challengeKeyPrefix+sessionID, answer, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// Consume deletes the challenge only when the answer matches
func (s *RedisChallengeStore) Consume(ctx context.Context, sessionID, answer string) (bool, error) {
	res, err := consumeLua.Run(ctx, s.client, []string{challengeKeyPrefix + sessionID}, answer).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to consume challenge: %w", err)
	}
	return res == 1, nil
}

// Delete removes a challenge regardless of its answer
func (s *RedisChallengeStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, challengeKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}
