// Package schema resolves the input contract a deployed system publishes.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"automation-hub/backend/internal/cache"
	"automation-hub/backend/internal/logging"
)

// ErrNoCompatibleEndpoint is returned when a system's interface description
// contains no POST operation with a JSON request body. This is a hard
// precondition, never retried.
var ErrNoCompatibleEndpoint = errors.New("no POST endpoint with JSON body found")

// UpstreamError reports a non-success response from a dependent service.
type UpstreamError struct {
	StatusCode int
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.StatusCode, e.URL)
}

// identityField is injected by the calling layer on submission; users must
// never be asked to supply it, so it is stripped from resolved schemas.
const identityField = "client_id"

// maxRefDepth guards against reference cycles; a node deeper than this is
// returned unresolved with a logged warning.
const maxRefDepth = 30

// Resolver fetches, dereferences and caches a system's input schema.
type Resolver struct {
	cache  cache.SchemaCache
	client *http.Client
	logger *logging.Logger
}

// NewResolver creates a new Resolver. A nil httpClient gets a 15s-timeout default.
func NewResolver(schemaCache cache.SchemaCache, httpClient *http.Client, logger *logging.Logger) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Resolver{cache: schemaCache, client: httpClient, logger: logger}
}

// Resolve returns the fully dereferenced JSON Schema for the input body of
// the system deployed at baseURL. A successful resolution is cached by slug
// and reused until Invalidate is called for that slug.
func (r *Resolver) Resolve(ctx context.Context, baseURL, slug string) (map[string]any, error) {
	if cached, ok, err := r.cache.Get(ctx, slug); err != nil {
		return nil, fmt.Errorf("schema cache lookup: %w", err)
	} else if ok {
		return cached, nil
	}

	doc, err := r.fetchDocument(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	raw := firstPostBodySchema(doc)
	if raw == nil {
		return nil, fmt.Errorf("%w for %q", ErrNoCompatibleEndpoint, slug)
	}

	resolved, ok := r.resolveRefs(raw, doc, 0).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("input schema for %q is not an object", slug)
	}
	stripIdentityField(resolved)

	if err := r.cache.Put(ctx, slug, resolved); err != nil {
		return nil, fmt.Errorf("schema cache store: %w", err)
	}
	return resolved, nil
}

// Invalidate removes any cached schema for slug. Called after a redeploy,
// since redeployment may change the contract.
func (r *Resolver) Invalidate(ctx context.Context, slug string) error {
	return r.cache.Invalidate(ctx, slug)
}

func (r *Resolver) fetchDocument(ctx context.Context, baseURL string) (map[string]any, error) {
	specURL := strings.TrimRight(baseURL, "/") + "/openapi.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, specURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create spec request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch interface description: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: specURL}
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode interface description: %w", err)
	}
	return doc, nil
}

// firstPostBodySchema locates the first POST path with a JSON request body.
func firstPostBodySchema(doc map[string]any) map[string]any {
	paths, _ := doc["paths"].(map[string]any)
	for _, methods := range paths {
		m, ok := methods.(map[string]any)
		if !ok {
			continue
		}
		post, ok := m["post"].(map[string]any)
		if !ok {
			continue
		}
		rb, _ := post["requestBody"].(map[string]any)
		content, _ := rb["content"].(map[string]any)
		jsonCT, _ := content["application/json"].(map[string]any)
		if schema, ok := jsonCT["schema"].(map[string]any); ok {
			return schema
		}
	}
	return nil
}

// resolveRefs recursively resolves pointer-style $ref nodes against the full
// document. Beyond maxRefDepth the node is returned as-is.
func (r *Resolver) resolveRefs(node any, root map[string]any, depth int) any {
	if depth > maxRefDepth {
		r.logger.Warn("reference depth exceeded %d, returning node unresolved", maxRefDepth)
		return node
	}
	switch n := node.(type) {
	case map[string]any:
		if ref, ok := n["$ref"].(string); ok {
			target := r.lookupRef(ref, root)
			if target == nil {
				return n
			}
			return r.resolveRefs(target, root, depth+1)
		}
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[k] = r.resolveRefs(v, root, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = r.resolveRefs(item, root, depth+1)
		}
		return out
	default:
		return node
	}
}

func (r *Resolver) lookupRef(ref string, root map[string]any) any {
	var resolved any = root
	for _, part := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		obj, ok := resolved.(map[string]any)
		if !ok {
			r.logger.Warn("unresolvable $ref: %s", ref)
			return nil
		}
		resolved, ok = obj[part]
		if !ok {
			r.logger.Warn("unresolvable $ref: %s", ref)
			return nil
		}
	}
	return resolved
}

// stripIdentityField drops the injected identity field from properties and
// the required list.
func stripIdentityField(schema map[string]any) {
	if props, ok := schema["properties"].(map[string]any); ok {
		delete(props, identityField)
	}
	if required, ok := schema["required"].([]any); ok {
		kept := make([]any, 0, len(required))
		for _, name := range required {
			if name != identityField {
				kept = append(kept, name)
			}
		}
		schema["required"] = kept
	}
}
