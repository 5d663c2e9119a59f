package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newQueueServer fakes the provider queue: one submit endpoint, a status
// endpoint that reports IN_PROGRESS for the first polls, and a response
// endpoint serving the final payload.
func newQueueServer(t *testing.T, pollsUntilDone int64, result string) *httptest.Server {
	t.Helper()
	var polls atomic.Int64
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("POST /fal-ai/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Key test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"request_id":   "req-1",
			"status_url":   server.URL + "/status",
			"response_url": server.URL + "/response",
		})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		status := "IN_PROGRESS"
		if polls.Add(1) >= pollsUntilDone {
			status = "COMPLETED"
		}
		fmt.Fprintf(w, `{"status": %q}`, status)
	})
	mux.HandleFunc("GET /response", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(result))
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(Config{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		PollInterval: 5 * time.Millisecond,
		Timeout:      5 * time.Second,
		HTTPClient:   server.Client(),
	})
}

func TestTextToImage(t *testing.T) {
	server := newQueueServer(t, 3, `{"images": [{"url": "https://cdn.test/img.png"}]}`)
	client := newTestClient(server)

	url, err := client.TextToImage(context.Background(), ImageRequest{Prompt: "a person holding a bottle", Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/img.png", url)
}

func TestTextToSpeech(t *testing.T) {
	server := newQueueServer(t, 1, `{"audio_url": {"url": "https://cdn.test/chunk.wav"}}`)
	client := newTestClient(server)

	url, err := client.TextToSpeech(context.Background(), "say \"hello\"\nworld", "https://cdn.test/voice.wav")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/chunk.wav", url)
}

func TestImageToVideo(t *testing.T) {
	server := newQueueServer(t, 2, `{"video": {"url": "https://cdn.test/clip.mp4"}}`)
	client := newTestClient(server)

	url, err := client.ImageToVideo(context.Background(), "https://cdn.test/img.png", "natural movement")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/clip.mp4", url)
}

func TestSubmitAndWaitFailure(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("POST /fal-ai/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"request_id":   "req-1",
			"status_url":   server.URL + "/status",
			"response_url": server.URL + "/response",
		})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "FAILED", "error": "nsfw filter"}`))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server)
	_, err := client.TextToImage(context.Background(), ImageRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "nsfw filter")
}

func TestSubmitAndWaitRespectsTimeout(t *testing.T) {
	server := newQueueServer(t, 1<<30, `{}`)
	client := NewClient(Config{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		PollInterval: time.Millisecond,
		Timeout:      30 * time.Millisecond,
		HTTPClient:   server.Client(),
	})

	_, err := client.TextToImage(context.Background(), ImageRequest{Prompt: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
