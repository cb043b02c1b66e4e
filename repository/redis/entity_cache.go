package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/taskboard/backend/repository"
)

type entityCache struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewEntityCache creates a Redis-backed read-through cache for individual
// documents.
func NewEntityCache(client *redislib.Client, ttl time.Duration) repository.EntityCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &entityCache{
		client: client,
		prefix: "doc:",
		ttl:    ttl,
	}
}

func (c *entityCache) Get(ctx context.Context, collection, id string, dst interface{}) (bool, error) {
	payload, err := c.client.Get(ctx, c.key(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *entityCache) Set(ctx context.Context, collection, id string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(collection, id), payload, c.ttl).Err()
}

func (c *entityCache) Invalidate(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(collection, id)
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *entityCache) key(collection, id string) string {
	return fmt.Sprintf("%s%s:%s", c.prefix, collection, id)
}
