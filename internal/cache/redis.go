package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSchemaCache is a SchemaCache backed by Redis, for deployments running
// more than one API instance: an invalidation on deploy must be seen by every
// resolver, not just the one that handled the deploy request.
type RedisSchemaCache struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisSchemaCache(client *redis.Client) *RedisSchemaCache {
	return &RedisSchemaCache{client: client, keyPrefix: "schema:"}
}

func (c *RedisSchemaCache) Get(ctx context.Context, slug string) (map[string]any, bool, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+slug).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached schema: %w", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, false, fmt.Errorf("decode cached schema: %w", err)
	}
	return schema, true, nil
}

func (c *RedisSchemaCache) Put(ctx context.Context, slug string, schema map[string]any) error {
	encoded, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+slug, encoded, 0).Err(); err != nil {
		return fmt.Errorf("put cached schema: %w", err)
	}
	return nil
}

func (c *RedisSchemaCache) Invalidate(ctx context.Context, slug string) error {
	if err := c.client.Del(ctx, c.keyPrefix+slug).Err(); err != nil {
		return fmt.Errorf("invalidate cached schema: %w", err)
	}
	return nil
}
