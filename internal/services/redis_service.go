package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const premiumKeyPrefix = "premium_status:"

// PremiumCache caches per-user premium status.
type PremiumCache interface {
	Get(ctx context.Context, userID string) (premium bool, found bool, err error)
	Set(ctx context.Context, userID string, premium bool) error
	Invalidate(ctx context.Context, userID string) error
}

// RedisService is a Redis-backed PremiumCache.
type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisService creates a premium cache on an already connected client.
func NewRedisService(client *redis.Client, ttl time.Duration) *RedisService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisService{client: client, ttl: ttl}
}

func premiumKey(userID string) string {
	return premiumKeyPrefix + userID
}

// Get returns the cached status. found is false on a cache miss.
func (r *RedisService) Get(ctx context.Context, userID string) (bool, bool, error) {
	val, err := r.client.Get(ctx, premiumKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to read premium cache: %w", err)
	}
	return val == "1", true, nil
}

// Set stores the status with the configured TTL.
func (r *RedisService) Set(ctx context.Context, userID string, premium bool) error {
	val := "0"
	if premium {
		val = "1"
	}
	if err := r.client.Set(ctx, premiumKey(userID), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write premium cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached status.
func (r *RedisService) Invalidate(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, premiumKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate premium cache: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
