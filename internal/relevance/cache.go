package relevance

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "relevance:"

// Cache stores fast-path verdicts in redis keyed by action ID. It is a pure
// optimization: every failure degrades to recomputation, never to a wrong
// answer from this process's point of view.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Get returns the cached verdict for an action and whether one was present.
func (c *Cache) Get(ctx context.Context, actionID string) (relevant, ok bool) {
	val, err := c.rdb.Get(ctx, cacheKeyPrefix+actionID).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		log.Printf("relevance: cache get %s: %v", actionID, err)
		return false, false
	}
	return val == "1", true
}

// Set stores a verdict with the given TTL.
func (c *Cache) Set(ctx context.Context, actionID string, relevant bool, ttl time.Duration) {
	val := "0"
	if relevant {
		val = "1"
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+actionID, val, ttl).Err(); err != nil {
		log.Printf("relevance: cache set %s: %v", actionID, err)
	}
}

// Invalidate drops a cached verdict, e.g. after the underlying contact
// context changed.
func (c *Cache) Invalidate(ctx context.Context, actionID string) {
	if err := c.rdb.Del(ctx, cacheKeyPrefix+actionID).Err(); err != nil {
		log.Printf("relevance: cache invalidate %s: %v", actionID, err)
	}
}
