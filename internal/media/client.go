// Package media calls the generative media provider's queue API.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client submits generation requests and polls until the artifact is ready.
// Each capability method returns the provider-hosted URL of the produced
// artifact; callers re-home artifacts into durable storage themselves.
type Client struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	timeout      time.Duration
	httpClient   *http.Client
}

func NewClient(config Config) *Client {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://queue.fal.run"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &Client{
		apiKey:       strings.TrimSpace(config.APIKey),
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		pollInterval: config.PollInterval,
		timeout:      config.Timeout,
		httpClient:   config.HTTPClient,
	}
}

const (
	modelTextToImage  = "fal-ai/flux-pro/v1.1-ultra"
	modelTextToSpeech = "fal-ai/f5-tts"
	modelImageToVideo = "fal-ai/kling-video/v1.0/standard/image-to-video"
)

// ImageRequest describes one text-to-image generation.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
	Seed        int
}

// TextToImage generates one image and returns its artifact URL.
func (c *Client) TextToImage(ctx context.Context, req ImageRequest) (string, error) {
	if req.AspectRatio == "" {
		req.AspectRatio = "9:16"
	}
	result, err := c.submitAndWait(ctx, modelTextToImage, map[string]any{
		"prompt":           req.Prompt,
		"aspect_ratio":     req.AspectRatio,
		"safety_tolerance": "2",
		"seed":             req.Seed,
	})
	if err != nil {
		return "", err
	}
	images, _ := result["images"].([]any)
	if len(images) == 0 {
		return "", fmt.Errorf("text-to-image result contained no images")
	}
	first, _ := images[0].(map[string]any)
	url, _ := first["url"].(string)
	if url == "" {
		return "", fmt.Errorf("text-to-image result missing image url")
	}
	return url, nil
}

// TextToSpeech synthesizes text into speech cloned from refVoiceURL and
// returns the audio artifact URL.
func (c *Client) TextToSpeech(ctx context.Context, text, refVoiceURL string) (string, error) {
	clean := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(text, `"`, ""), "\n", " "))
	result, err := c.submitAndWait(ctx, modelTextToSpeech, map[string]any{
		"gen_text":      clean,
		"ref_audio_url": refVoiceURL,
	})
	if err != nil {
		return "", err
	}
	audio, _ := result["audio_url"].(map[string]any)
	url, _ := audio["url"].(string)
	if url == "" {
		return "", fmt.Errorf("text-to-speech result missing audio url")
	}
	return url, nil
}

// ImageToVideo animates imageURL guided by prompt and returns the video
// artifact URL.
func (c *Client) ImageToVideo(ctx context.Context, imageURL, prompt string) (string, error) {
	result, err := c.submitAndWait(ctx, modelImageToVideo, map[string]any{
		"prompt":       prompt,
		"image_url":    imageURL,
		"duration":     "5",
		"aspect_ratio": "9:16",
	})
	if err != nil {
		return "", err
	}
	video, _ := result["video"].(map[string]any)
	url, _ := video["url"].(string)
	if url == "" {
		return "", fmt.Errorf("image-to-video result missing video url")
	}
	return url, nil
}

type queueTicket struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type queueStatus struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// submitAndWait enqueues one generation and polls its status until it
// completes, fails, or the configured timeout elapses.
func (c *Client) submitAndWait(ctx context.Context, model string, input map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticket, err := c.submit(ctx, model, input)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", model, ctx.Err())
		case <-ticker.C:
		}

		var status queueStatus
		if err := c.getJSON(ctx, ticket.StatusURL, &status); err != nil {
			return nil, err
		}
		switch status.Status {
		case "COMPLETED":
			var result map[string]any
			if err := c.getJSON(ctx, ticket.ResponseURL, &result); err != nil {
				return nil, err
			}
			return result, nil
		case "FAILED", "ERROR":
			return nil, fmt.Errorf("%s generation failed: %s", model, status.Error)
		}
	}
}

func (c *Client) submit(ctx context.Context, model string, input map[string]any) (*queueTicket, error) {
	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal %s input: %w", model, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", model, err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", model, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("submit %s: status %d: %s", model, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ticket queueTicket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return nil, fmt.Errorf("decode %s ticket: %w", model, err)
	}
	if ticket.StatusURL == "" || ticket.ResponseURL == "" {
		return nil, fmt.Errorf("%s ticket missing status/response urls", model)
	}
	return &ticket, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create poll request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
