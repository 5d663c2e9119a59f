package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-hub/backend/pkg/models"
)

func TestGeminiClientGenerate(t *testing.T) {
	var captured geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "},{"text":"there"}]}}]}`))
	}))
	defer server.Close()

	client := NewGeminiClient(GeminiClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})

	reply, err := client.Generate(context.Background(), Request{
		SystemInstruction: "You are an intake assistant.",
		History: []models.ChatTurn{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "what product?"},
		},
		Message: "a water bottle",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply)

	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "You are an intake assistant.", captured.SystemInstruction.Parts[0].Text)

	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "model", captured.Contents[1].Role)
	assert.Equal(t, "user", captured.Contents[2].Role)
	assert.Equal(t, "a water bottle", captured.Contents[2].Parts[0].Text)
	assert.Nil(t, captured.GenerationConfig)
}

func TestGeminiClientJSONMode(t *testing.T) {
	var captured geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`))
	}))
	defer server.Close()

	client := NewGeminiClient(GeminiClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	_, err := client.Generate(context.Background(), Request{Message: "write scripts"})
	require.NoError(t, err)
	assert.Nil(t, captured.GenerationConfig)

	_, err = client.Generate(context.Background(), Request{Message: "write scripts", JSONMode: true})
	require.NoError(t, err)
	require.NotNil(t, captured.GenerationConfig)
	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMimeType)
}

func TestGeminiClientGenerateWithAudio(t *testing.T) {
	var captured geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"topics\":[]}"}]}}]}`))
	}))
	defer server.Close()

	audioPath := filepath.Join(t.TempDir(), "episode.mp3")
	require.NoError(t, os.WriteFile(audioPath, []byte("fake audio bytes"), 0o644))

	client := NewGeminiClient(GeminiClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	reply, err := client.GenerateWithAudio(context.Background(), AudioRequest{
		Path:     audioPath,
		Prompt:   "summarize this episode",
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"topics":[]}`, reply)

	require.Len(t, captured.Contents, 1)
	parts := captured.Contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "audio/mp3", parts[0].InlineData.MimeType)
	decoded, err := base64.StdEncoding.DecodeString(parts[0].InlineData.Data)
	require.NoError(t, err)
	assert.Equal(t, "fake audio bytes", string(decoded))
	assert.Equal(t, "summarize this episode", parts[1].Text)
	require.NotNil(t, captured.GenerationConfig)
	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMimeType)
}

func TestGeminiClientUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota"}`))
	}))
	defer server.Close()

	client := NewGeminiClient(GeminiClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	_, err := client.Generate(context.Background(), Request{Message: "hi"})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
}
