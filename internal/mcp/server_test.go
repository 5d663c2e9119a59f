package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"automation-hub/backend/internal/cache"
	"automation-hub/backend/internal/intake"
	"automation-hub/backend/internal/llm"
	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/internal/schema"
	"automation-hub/backend/pkg/models"
)

const toolSpecDoc = `{
	"paths": {
		"/": {
			"post": {
				"requestBody": {
					"content": {
						"application/json": {
							"schema": {
								"type": "object",
								"required": ["client_id", "product_brief"],
								"properties": {
									"client_id": {"type": "string"},
									"product_brief": {"type": "string"}
								}
							}
						}
					}
				}
			}
		}
	}
}`

type llmFunc func(ctx context.Context, req llm.Request) (string, error)

func (f llmFunc) Generate(ctx context.Context, req llm.Request) (string, error) {
	return f(ctx, req)
}

func newToolServer(t *testing.T, reply string, limiter *rate.Limiter) (*Server, *repository.MemoryJobStore) {
	t.Helper()

	specSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/openapi.json" {
			_, _ = w.Write([]byte(toolSpecDoc))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(specSrv.Close)

	logger := logging.NewLogger()
	systems := repository.NewMemorySystemStore()
	url := specSrv.URL
	require.NoError(t, systems.Create(context.Background(), &models.System{
		ID:          "1",
		Slug:        "video-ads",
		Name:        "Video Ads",
		Category:    models.CategoryContent,
		EndpointURL: &url,
		APIKey:      "sk_test",
		Status:      models.SystemStatusDeployed,
	}))

	resolver := schema.NewResolver(cache.NewMemorySchemaCache(), specSrv.Client(), logger)
	engine := intake.NewEngine(systems, resolver, llmFunc(func(_ context.Context, _ llm.Request) (string, error) {
		return reply, nil
	}), logger)

	jobs := repository.NewMemoryJobStore()
	return NewServer(engine, systems, jobs, limiter), jobs
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestListSystemsTool(t *testing.T) {
	s, _ := newToolServer(t, "irrelevant", nil)

	res, err := s.handleListSystems(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var systems []models.System
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &systems))
	require.Len(t, systems, 1)
	assert.Equal(t, "video-ads", systems[0].Slug)
}

func TestIntakeChatToolSurfacesReadyPayload(t *testing.T) {
	s, _ := newToolServer(t, `{"ready": true, "payload": {"client_id": "c1", "product_brief": "tumbler"}}`, nil)

	res, err := s.handleIntakeChat(context.Background(), toolRequest(map[string]interface{}{
		"slug":    "video-ads",
		"message": "submit it",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, true, out["ready"])
	payload, ok := out["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tumbler", payload["product_brief"])
}

func TestIntakeChatToolRejectsMissingArguments(t *testing.T) {
	s, _ := newToolServer(t, "irrelevant", nil)

	res, err := s.handleIntakeChat(context.Background(), toolRequest(map[string]interface{}{
		"slug": "video-ads",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "message")
}

func TestIntakeToolsShareRateBudget(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(0.01), 1)
	s, jobs := newToolServer(t, "What product are we advertising?", limiter)

	res, err := s.handleIntakeChat(context.Background(), toolRequest(map[string]interface{}{
		"slug":    "video-ads",
		"message": "hi",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	// The budget is spent; both intake tools are refused.
	res, err = s.handleIntakeChat(context.Background(), toolRequest(map[string]interface{}{
		"slug":    "video-ads",
		"message": "hi again",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Rate limit")

	res, err = s.handleIntakeIntro(context.Background(), toolRequest(map[string]interface{}{
		"slug": "video-ads",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Rate limit")

	// Lookups don't burn the intake budget.
	require.NoError(t, jobs.Create(context.Background(), &models.Job{
		ID: "j1", SystemSlug: "video-ads", Status: models.JobStatusReceived}))
	res, err = s.handleJobStatus(context.Background(), toolRequest(map[string]interface{}{"id": "j1"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestNewChatLimiterDefaults(t *testing.T) {
	limiter := NewChatLimiter(0, 0)
	assert.Equal(t, rate.Limit(5), limiter.Limit())
	assert.Equal(t, 10, limiter.Burst())
}
