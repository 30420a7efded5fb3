package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = time.Hour

// SummaryCache wraps a Redis client and stores generated forecast commentary.
// Entries are keyed by city and the newest forecast date, so new samples
// for a city naturally miss the cache.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache constructs a SummaryCache with a 1-hour TTL.
func NewSummaryCache(client *redis.Client) *SummaryCache {
	return &SummaryCache{client: client, ttl: defaultTTL}
}

// key returns the Redis key for the given city and forecast date.
func key(city, latest string) string {
	return "summary:" + strings.ToLower(strings.TrimSpace(city)) + ":" + latest
}

// Get retrieves a cached summary.
// Returns "", false, nil on a cache miss (not an error).
func (c *SummaryCache) Get(ctx context.Context, city, latest string) (string, bool, error) {
	val, err := c.client.Get(ctx, key(city, latest)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache get for city %s: %w", city, err)
	}
	return val, true, nil
}

// Set stores a summary with the configured TTL. Empty summaries are not cached.
func (c *SummaryCache) Set(ctx context.Context, city, latest, summary string) error {
	if summary == "" {
		return nil
	}
	if err := c.client.Set(ctx, key(city, latest), summary, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for city %s: %w", city, err)
	}
	return nil
}

// Delete removes the cached summary for the given city and forecast date.
func (c *SummaryCache) Delete(ctx context.Context, city, latest string) error {
	if err := c.client.Del(ctx, key(city, latest)).Err(); err != nil {
		return fmt.Errorf("cache delete for city %s: %w", city, err)
	}
	return nil
}
