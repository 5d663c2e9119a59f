package cache

import (
	"context"
	"sync"
)

// MemorySchemaCache is a process-local SchemaCache.
type MemorySchemaCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]any
}

func NewMemorySchemaCache() *MemorySchemaCache {
	return &MemorySchemaCache{entries: make(map[string]map[string]any)}
}

func (c *MemorySchemaCache) Get(_ context.Context, slug string) (map[string]any, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	schema, ok := c.entries[slug]
	return schema, ok, nil
}

func (c *MemorySchemaCache) Put(_ context.Context, slug string, schema map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[slug] = schema
	return nil
}

func (c *MemorySchemaCache) Invalidate(_ context.Context, slug string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, slug)
	return nil
}
