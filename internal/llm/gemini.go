package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// UpstreamError reports a non-success status from the inference service.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("inference service returned %d: %s", e.StatusCode, e.Body)
}

type GeminiClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GeminiClient calls the Gemini generateContent REST API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

func NewGeminiClient(config GeminiClientConfig) *GeminiClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if strings.TrimSpace(config.Model) == "" {
		config.Model = "gemini-2.5-flash"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &GeminiClient{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		model:      config.Model,
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
	}
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"system_instruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", fmt.Errorf("message is required")
	}

	payload := geminiRequest{
		Contents: make([]geminiContent, 0, len(req.History)+1),
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemInstruction}}}
	}
	for _, turn := range req.History {
		payload.Contents = append(payload.Contents, geminiContent{
			Role:  geminiRole(turn.Role),
			Parts: []geminiPart{{Text: turn.Content}},
		})
	}
	payload.Contents = append(payload.Contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: req.Message}},
	})
	if req.JSONMode {
		payload.GenerationConfig = &geminiGenConfig{ResponseMimeType: "application/json"}
	}

	return c.generate(ctx, payload)
}

// AudioRequest is a single multimodal turn pairing a local audio file with an
// instruction. The file is sent inline, base64-encoded.
type AudioRequest struct {
	Path     string
	MimeType string
	Prompt   string
	JSONMode bool
}

// GenerateWithAudio analyzes an audio file alongside a text prompt.
func (c *GeminiClient) GenerateWithAudio(ctx context.Context, req AudioRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}
	if req.MimeType == "" {
		req.MimeType = "audio/mp3"
	}

	data, err := os.ReadFile(req.Path)
	if err != nil {
		return "", fmt.Errorf("read audio file: %w", err)
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiBlob{MimeType: req.MimeType, Data: base64.StdEncoding.EncodeToString(data)}},
				{Text: req.Prompt},
			},
		}},
	}
	if req.JSONMode {
		payload.GenerationConfig = &geminiGenConfig{ResponseMimeType: "application/json"}
	}

	return c.generate(ctx, payload)
}

func (c *GeminiClient) generate(ctx context.Context, payload geminiRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal inference payload: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpRequest, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("create inference request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return "", fmt.Errorf("call inference service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded geminiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("inference response contained no candidates")
	}

	var text strings.Builder
	for _, part := range decoded.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

// geminiRole maps our turn roles onto the wire roles the API expects.
func geminiRole(role string) string {
	if role == "assistant" || role == "model" {
		return "model"
	}
	return "user"
}
