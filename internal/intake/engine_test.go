package intake

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-hub/backend/internal/cache"
	"automation-hub/backend/internal/llm"
	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/internal/schema"
	"automation-hub/backend/pkg/models"
)

type llmFunc func(ctx context.Context, req llm.Request) (string, error)

func (f llmFunc) Generate(ctx context.Context, req llm.Request) (string, error) {
	return f(ctx, req)
}

const engineSpecDoc = `{
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
									"product_brief": {"type": "string"},
									"camera_angle": {"type": "string", "enum": ["full_body", "waist_up", "close_up"]}
								}
							}
						}
					}
				}
			}
		}
	}
}`

func newEngine(t *testing.T, client llm.Client) (*Engine, *repository.MemorySystemStore) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/openapi.json" {
			_, _ = w.Write([]byte(engineSpecDoc))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	systems := repository.NewMemorySystemStore()
	url := server.URL
	require.NoError(t, systems.Create(context.Background(), &models.System{
		ID:          "1",
		Slug:        "video-ads",
		Name:        "Video Ads",
		Category:    models.CategoryContent,
		ChatContext: "You collect video ad briefs.",
		EndpointURL: &url,
		APIKey:      "sk_test",
		Status:      models.SystemStatusDeployed,
	}))
	require.NoError(t, systems.Create(context.Background(), &models.System{
		ID:     "2",
		Slug:   "not-deployed",
		Name:   "Not Deployed",
		Status: models.SystemStatusScaffold,
	}))

	resolver := schema.NewResolver(cache.NewMemorySchemaCache(), server.Client(), logging.NewLogger())
	return NewEngine(systems, resolver, client, logging.NewLogger()), systems
}

func TestChatPreconditions(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t, llmFunc(func(context.Context, llm.Request) (string, error) {
		t.Fatal("llm must not be called when preconditions fail")
		return "", nil
	}))

	_, err := engine.Chat(ctx, "missing", "hi", nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = engine.Chat(ctx, "not-deployed", "hi", nil)
	assert.ErrorIs(t, err, ErrNotDeployed)

	_, err = engine.Intro(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = engine.Intro(ctx, "not-deployed")
	assert.ErrorIs(t, err, ErrNotDeployed)
}

func TestChatPassesThroughOrdinaryReply(t *testing.T) {
	var captured llm.Request
	engine, _ := newEngine(t, llmFunc(func(_ context.Context, req llm.Request) (string, error) {
		captured = req
		return "What product are we advertising?", nil
	}))

	history := []models.ChatTurn{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hi!"}}
	reply, err := engine.Chat(context.Background(), "video-ads", "let's start", history)
	require.NoError(t, err)
	assert.Equal(t, "What product are we advertising?", reply)

	assert.Contains(t, captured.SystemInstruction, "You collect video ad briefs.")
	assert.Contains(t, captured.SystemInstruction, "product_brief")
	assert.NotContains(t, captured.SystemInstruction, "client_id\": {")
	assert.Equal(t, history, captured.History)
	assert.Equal(t, "let's start", captured.Message)
}

func TestChatReadyPayloadConformsToSchema(t *testing.T) {
	readyReply := `{"ready": true, "payload": {"product_brief": "steel bottle", "camera_angle": "close_up"}}`
	engine, _ := newEngine(t, llmFunc(func(context.Context, llm.Request) (string, error) {
		return readyReply, nil
	}))

	history := []models.ChatTurn{
		{Role: "assistant", Content: "Summary: steel bottle, close_up. Confirm?"},
	}
	reply, err := engine.Chat(context.Background(), "video-ads", "yes, confirmed", history)
	require.NoError(t, err)

	ready, ok := ParseReady(reply)
	require.True(t, ok)
	assert.True(t, ready.Ready)

	// Payload keys are a subset of the resolved schema's properties.
	for key := range ready.Payload {
		assert.Contains(t, []string{"product_brief", "camera_angle"}, key)
	}
}

func TestChatRepromptsOnInvalidReadyPayload(t *testing.T) {
	calls := 0
	var correction llm.Request
	engine, _ := newEngine(t, llmFunc(func(_ context.Context, req llm.Request) (string, error) {
		calls++
		if calls == 1 {
			// Enum violation: "sideways" is not an allowed camera angle.
			return `{"ready": true, "payload": {"product_brief": "bottle", "camera_angle": "sideways"}}`, nil
		}
		correction = req
		return "Sorry — the camera angle options are: 1. full_body 2. waist_up 3. close_up. Which one?", nil
	}))

	reply, err := engine.Chat(context.Background(), "video-ads", "confirm", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	_, ok := ParseReady(reply)
	assert.False(t, ok, "invalid ready payload must not be passed through")

	assert.Contains(t, correction.Message, "does not conform")
	require.Len(t, correction.History, 2)
	assert.Equal(t, "user", correction.History[0].Role)
	assert.Equal(t, "assistant", correction.History[1].Role)
}

func TestChatRejectsRepeatedInvalidReadyPayload(t *testing.T) {
	// The model ignores the correction prompt and re-asserts the same
	// invalid ready object. The engine must not hand it through.
	badReply := `{"ready": true, "payload": {"product_brief": "bottle", "camera_angle": "sideways"}}`
	calls := 0
	engine, _ := newEngine(t, llmFunc(func(context.Context, llm.Request) (string, error) {
		calls++
		return badReply, nil
	}))

	reply, err := engine.Chat(context.Background(), "video-ads", "confirm", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	_, ok := ParseReady(reply)
	assert.False(t, ok, "invalid ready payload must not survive the correction turn")
	assert.Contains(t, reply, "camera_angle")
}

func TestChatAcceptsCorrectedReadyPayload(t *testing.T) {
	calls := 0
	engine, _ := newEngine(t, llmFunc(func(context.Context, llm.Request) (string, error) {
		calls++
		if calls == 1 {
			return `{"ready": true, "payload": {"product_brief": "bottle", "camera_angle": "sideways"}}`, nil
		}
		return `{"ready": true, "payload": {"product_brief": "bottle", "camera_angle": "close_up"}}`, nil
	}))

	reply, err := engine.Chat(context.Background(), "video-ads", "confirm", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	ready, ok := ParseReady(reply)
	require.True(t, ok)
	assert.Equal(t, "close_up", ready.Payload["camera_angle"])
}

func TestIntroUsesSchemaAndContext(t *testing.T) {
	var captured llm.Request
	engine, _ := newEngine(t, llmFunc(func(_ context.Context, req llm.Request) (string, error) {
		captured = req
		return "Hi! I help create video ads. What's the product brief?", nil
	}))

	reply, err := engine.Intro(context.Background(), "video-ads")
	require.NoError(t, err)
	assert.NotEmpty(t, reply)

	assert.Empty(t, captured.History)
	assert.Empty(t, captured.SystemInstruction)
	assert.Contains(t, captured.Message, "You collect video ad briefs.")
	assert.Contains(t, captured.Message, "product_brief")
}

func TestParseReady(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		ok    bool
	}{
		{"bare object", `{"ready": true, "payload": {"a": 1}}`, true},
		{"fenced object", "```json\n{\"ready\": true, \"payload\": {}}\n```", true},
		{"ready false", `{"ready": false, "payload": {"a": 1}}`, false},
		{"missing payload", `{"ready": true}`, false},
		{"trailing prose", `{"ready": true, "payload": {"a": 1}} thanks!`, false},
		{"plain text", "What is the product?", false},
		{"leading prose", `Here you go: {"ready": true, "payload": {}}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := ParseReady(tc.reply)
			assert.Equal(t, tc.ok, ok)
		})
	}

	t.Run("fenced with payload values", func(t *testing.T) {
		ready, ok := ParseReady("```json\n{\"ready\": true, \"payload\": {\"a\": 1}}\n```")
		require.True(t, ok)
		var got map[string]any
		raw, _ := json.Marshal(ready.Payload)
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, float64(1), got["a"])
	})
}
