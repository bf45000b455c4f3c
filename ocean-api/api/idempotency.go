package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyKeyHeader carries the client's idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

const dedupeKeyPrefix = "catch-report"

// RedisDeduper stores idempotency keys in Redis so every instance maps a
// repeated submission to the report id assigned the first time.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("%s:%s:%s", userID, dedupeKeyPrefix, key)
}

// Claim records id under the key if it does not already exist. When the key
// is taken it returns false together with the recorded id.
func (r *RedisDeduper) Claim(ctx context.Context, userID, key, id string) (bool, string, error) {
	k := r.key(userID, key)
	ok, err := r.client.SetNX(ctx, k, id, r.ttl).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, id, nil
	}
	existing, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired or released between the two calls; try once more.
		ok, err = r.client.SetNX(ctx, k, id, r.ttl).Result()
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, id, nil
		}
		existing, err = r.client.Get(ctx, k).Result()
	}
	if err != nil {
		return false, "", err
	}
	return false, existing, nil
}

// Release deletes a previously claimed key. It is used when persisting the
// report fails so the client may retry with the same key.
func (r *RedisDeduper) Release(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}
