package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lysyi3m/shelter-sync/app/shelter"
)

const keyPrefix = "shelter-sync:response:"

// Keys deleted per DEL command during invalidation
const deleteChunkSize = 100

// Cache stores rendered read API responses in Redis until the next
// successful sync or until the TTL expires.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects to Redis and verifies the connection
func NewCache(ctx context.Context, addr string, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr, "ttl", ttl)

	return &Cache{
		client: client,
		ttl:    ttl,
	}, nil
}

// GenerateKey maps a request key to a short, prefixed Redis key
func GenerateKey(requestKey string) string {
	hash := sha256.Sum256([]byte(requestKey))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:8])
}

// Get returns the cached body, reporting false on a miss
func (c *Cache) Get(ctx context.Context, requestKey string) ([]byte, bool, error) {
	key := GenerateKey(requestKey)

	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return val, true, nil
}

// Set stores a response body with the configured TTL
func (c *Cache) Set(ctx context.Context, requestKey string, body []byte) error {
	key := GenerateKey(requestKey)

	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// Invalidate removes every cached response and returns how many were dropped
func (c *Cache) Invalidate(ctx context.Context) (int, error) {
	var keys []string

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", deleteChunkSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan cached responses: %w", err)
	}

	deleted := 0
	for start := 0; start < len(keys); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(keys))

		n, err := c.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to delete cached responses: %w", err)
		}
		deleted += int(n)
	}

	return deleted, nil
}

// ObserveRun drops cached responses once a sync may have changed the data.
func (c *Cache) ObserveRun(summary *shelter.Summary, err error) {
	if !changedData(summary, err) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	deleted, invalidateErr := c.Invalidate(ctx)
	if invalidateErr != nil {
		slog.Warn("Failed to invalidate response cache", "run_id", summary.RunID, "error", invalidateErr)
		return
	}

	slog.Debug("Response cache invalidated", "run_id", summary.RunID, "keys", deleted)
}

// changedData reports whether a run committed anything. A failed run still
// committed its locations and the program batches before the failing one.
func changedData(summary *shelter.Summary, err error) bool {
	if err == nil {
		return true
	}
	return summary.Batches > 0 || summary.LocationsInserted > 0 || summary.LocationsExisting > 0
}

// Health reports whether Redis answers
func (c *Cache) Health(ctx context.Context) map[string]any {
	health := map[string]any{
		"status": "healthy",
		"type":   "redis",
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		health["key_count"] = keys
	}

	return health
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
