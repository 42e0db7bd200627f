// Package cache holds the Redis-backed helpers: idempotent response replay
// and the post-commit notification publisher.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client is the subset of *redis.Client the cache helpers use.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

const (
	DefaultIdempotencyTTL = 24 * time.Hour
	inFlightTTL           = 30 * time.Second
)

// StoredResponse is a completed response kept for replay.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type Idempotency struct {
	client Client
	ttl    time.Duration
}

func NewIdempotency(client Client, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &Idempotency{client: client, ttl: ttl}
}

func responseKey(key string) string { return "idem:resp:" + key }
func lockKey(key string) string     { return "idem:lock:" + key }

// Lookup returns the stored response for key, ok=false when none is stored.
func (s *Idempotency) Lookup(ctx context.Context, key string) (*StoredResponse, bool, error) {
	raw, err := s.client.Get(ctx, responseKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	var resp StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("idempotency decode: %w", err)
	}
	return &resp, true, nil
}

// Acquire marks key as in flight and returns the token that owns the marker.
// ok is false when another request with the same key holds it. The marker
// expires after inFlightTTL even if Release never runs.
func (s *Idempotency) Acquire(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, lockKey(key), token, inFlightTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("idempotency acquire: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (s *Idempotency) Save(ctx context.Context, key string, resp *StoredResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, responseKey(key), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency save: %w", err)
	}
	return nil
}

// releaseScript deletes the marker only while it still holds the caller's token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// Release drops the in-flight marker if token still owns it. A marker that
// expired and was taken by a later request is left alone.
func (s *Idempotency) Release(ctx context.Context, key, token string) error {
	if err := s.client.Eval(ctx, releaseScript, []string{lockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}
