// Package ratelimit provides per-client request limits for link creation:
// a Redis fixed window shared by every instance, or an in-process token
// bucket when Redis is disabled. Both satisfy the HTTP layer's RateLimiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// allowScript counts requests in a fixed window. It runs atomically in Redis.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local max_requests = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local current_time = tonumber(ARGV[3])

	local current = redis.call('GET', key)

	if current == false then
		redis.call('SET', key, 1, 'EX', window)
		return {1, max_requests - 1, current_time + window}
	end

	current = tonumber(current)
	local ttl = redis.call('TTL', key)
	if current < max_requests then
		redis.call('INCR', key)
		return {1, max_requests - current - 1, current_time + ttl}
	end

	return {0, 0, current_time + ttl}
`)

// RedisLimiter allows maxRequests per window per key
type RedisLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
}

// NewRedisLimiter creates a distributed fixed-window limiter.
// Example: NewRedisLimiter(client, 100, time.Minute)
func NewRedisLimiter(client *redis.Client, maxRequests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
	}
}

// Allow checks if a request should be allowed.
// Returns (allowed, remaining, resetTime, error).
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	now := time.Now()

	result, err := allowScript.Run(
		ctx,
		rl.client,
		[]string{keyPrefix + key},
		rl.maxRequests,
		int(rl.window.Seconds()),
		now.Unix(),
	).Result()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	return parseResult(result)
}

func parseResult(result any) (bool, int, time.Time, error) {
	values, ok := result.([]any)
	if !ok || len(values) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected result format")
	}

	allowed, ok1 := values[0].(int64)
	remaining, ok2 := values[1].(int64)
	reset, ok3 := values[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected result types")
	}

	return allowed == 1, int(remaining), time.Unix(reset, 0), nil
}

// Reset clears the counter for a key
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, keyPrefix+key).Err()
}

// MaxRequests returns the maximum number of requests allowed per window
func (rl *RedisLimiter) MaxRequests() int {
	return rl.maxRequests
}
