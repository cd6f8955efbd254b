package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const linkKeyPrefix = "link:"

// Cache is a cache-aside store for slug lookups.
// The store stays the source of truth; a miss is reported as (nil, nil).
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new Redis cache
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

func linkKey(slug string) string {
	return linkKeyPrefix + slug
}

// GetLink returns the cached link, or nil on a miss
func (c *Cache) GetLink(ctx context.Context, slug string) (*domain.Link, error) {
	start := time.Now()
	defer observe("get", start)

	data, err := c.client.Get(ctx, linkKey(slug)).Result()
	if err == redis.Nil {
		metrics.RecordCacheMiss()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	metrics.RecordCacheHit()

	var link domain.Link
	if err := json.Unmarshal([]byte(data), &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached link: %w", err)
	}

	return &link, nil
}

// SetLink stores a link under its slug
func (c *Cache) SetLink(ctx context.Context, link *domain.Link) error {
	start := time.Now()
	defer observe("set", start)

	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	if err := c.client.Set(ctx, linkKey(link.Slug), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

// DeleteLink evicts a slug, used when its link is deleted
func (c *Cache) DeleteLink(ctx context.Context, slug string) error {
	start := time.Now()
	defer observe("delete", start)

	if err := c.client.Del(ctx, linkKey(slug)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}

	return nil
}

// Clear removes every cached link
func (c *Cache) Clear(ctx context.Context) error {
	start := time.Now()
	defer observe("clear", start)

	iter := c.client.Scan(ctx, 0, linkKeyPrefix+"*", 0).Iterator()

	keys := []string{}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan error: %w", err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis delete error: %w", err)
		}
	}

	return nil
}

func observe(operation string, start time.Time) {
	metrics.CacheOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// InitRedis creates a new Redis client and checks the connection
func InitRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
