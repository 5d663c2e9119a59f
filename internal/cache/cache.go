// Package cache provides the schema cache behind the resolver.
//
// The cache is an injected dependency rather than ambient process state so a
// distributed backend can replace the in-process map without touching call
// sites.
package cache

import "context"

// SchemaCache stores resolved input schemas keyed by system slug.
type SchemaCache interface {
	// Get returns the cached schema for slug, reporting whether one exists.
	Get(ctx context.Context, slug string) (map[string]any, bool, error)
	// Put stores the schema for slug, overwriting any previous entry.
	Put(ctx context.Context, slug string, schema map[string]any) error
	// Invalidate removes any cached entry for slug. Invalidating an
	// unknown slug is a no-op.
	Invalidate(ctx context.Context, slug string) error
}
