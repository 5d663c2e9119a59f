// Package podcast turns a podcast episode into per-platform social content:
// the audio is downloaded, sent to the model inline, and the analysis comes
// back as one structured content bundle.
package podcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"automation-hub/backend/internal/llm"
	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/pipeline"
	"automation-hub/backend/pkg/models"
)

const SystemSlug = "transform-podcast-audio"

var defaultPlatforms = []string{"linkedin", "twitter", "instagram", "newsletter"}

// Request is the validated submission payload. The client identity travels
// on the job record, not in the payload.
type Request struct {
	AudioURL     string   `json:"audio_url"`
	Platforms    []string `json:"platforms,omitempty"`
	Tone         string   `json:"tone,omitempty"`
	EpisodeTitle string   `json:"episode_title,omitempty"`
	GuestName    string   `json:"guest_name,omitempty"`
}

func (r *Request) validate() error {
	if strings.TrimSpace(r.AudioURL) == "" {
		return fmt.Errorf("audio_url is required")
	}
	if len(r.Platforms) == 0 {
		r.Platforms = defaultPlatforms
	}
	if strings.TrimSpace(r.Tone) == "" {
		r.Tone = "professional"
	}
	return nil
}

// ContentOutput is the per-platform content bundle the model returns. Twitter
// holds the thread tweets followed by the standalone tweets.
type ContentOutput struct {
	Linkedin   []string `json:"linkedin"`
	Twitter    []string `json:"twitter"`
	Instagram  []string `json:"instagram"`
	Newsletter string   `json:"newsletter"`
	KeyQuotes  []string `json:"key_quotes"`
	Topics     []string `json:"topics"`
}

// AudioAnalyzer is the slice of the LLM client the pipeline needs. Satisfied
// by *llm.GeminiClient.
type AudioAnalyzer interface {
	GenerateWithAudio(ctx context.Context, req llm.AudioRequest) (string, error)
}

type Config struct {
	Analyzer   AudioAnalyzer
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Pipeline implements pipeline.Pipeline for the podcast content system.
type Pipeline struct {
	analyzer   AudioAnalyzer
	httpClient *http.Client
	logger     *logging.Logger
}

func New(config Config) *Pipeline {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &Pipeline{
		analyzer:   config.Analyzer,
		httpClient: config.HTTPClient,
		logger:     config.Logger,
	}
}

func (p *Pipeline) Slug() string { return SystemSlug }

// Stages parses the payload and returns the run's stage sequence. Stage
// functions share state through the run value.
func (p *Pipeline) Stages(job *pipeline.Job) ([]pipeline.Stage, error) {
	var req Request
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	r := &run{p: p, req: &req}
	return []pipeline.Stage{
		{Status: "audio_downloaded", Run: r.download},
		{Status: models.JobStatusCompleted, Run: r.generate},
	}, nil
}

// run holds the state flowing between stages of one job.
type run struct {
	p   *Pipeline
	req *Request

	audioPath string
}

func (r *run) download(ctx context.Context, job *pipeline.Job) (map[string]any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.req.AudioURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch audio %s: status %d", r.req.AudioURL, resp.StatusCode)
	}

	r.audioPath = filepath.Join(job.WorkDir, "input_audio")
	out, err := os.Create(r.audioPath)
	if err != nil {
		return nil, err
	}
	written, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}

	return map[string]any{"audio_bytes": written}, nil
}

func (r *run) generate(ctx context.Context, job *pipeline.Job) (map[string]any, error) {
	reply, err := r.p.analyzer.GenerateWithAudio(ctx, llm.AudioRequest{
		Path:     r.audioPath,
		MimeType: "audio/mp3",
		Prompt:   contentPrompt(r.req),
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	var out ContentOutput
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}

	return map[string]any{"content": out}, nil
}

func contentPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString("You are an expert social media content strategist and copywriter.\n")
	b.WriteString("Analyze the attached audio file (a podcast episode).\n\n")
	b.WriteString("CONTEXT:\n")
	if req.EpisodeTitle != "" {
		fmt.Fprintf(&b, "Episode Title: %s\n", req.EpisodeTitle)
	}
	if req.GuestName != "" {
		fmt.Fprintf(&b, "Guest Name: %s\n", req.GuestName)
	}
	fmt.Fprintf(&b, "Tone: %s\n\n", req.Tone)
	b.WriteString("TASK:\n")
	b.WriteString("1. Transcribe the audio internally (no need to output the full transcript, just use it for analysis).\n")
	b.WriteString("2. Extract key quotes, main topics, and the most engaging moments.\n")
	fmt.Fprintf(&b, "3. Generate content for the following platforms: %s.\n\n", strings.Join(req.Platforms, ", "))
	b.WriteString(`PLATFORM REQUIREMENTS:
- LinkedIn: 1-2 long-form posts with strong hooks, professional yet engaging spacing, and a clear call to action.
- Twitter/X: A thread of 5-10 tweets summarizing the episode, plus 3 standalone viral-style tweets.
- Instagram: 3 caption options (short, medium, long) with relevant hashtags.
- Newsletter: A concise summary + bulleted key takeaways + "Why you should listen" section.

OUTPUT FORMAT:
Return PURE JSON matching exactly:
{
  "linkedin": ["post 1", "post 2"],
  "twitter": ["thread tweet 1", "thread tweet 2", "standalone tweet 1"],
  "instagram": ["caption 1", "caption 2", "caption 3"],
  "newsletter": "full newsletter text",
  "key_quotes": ["quote 1", "quote 2"],
  "topics": ["topic 1", "topic 2"]
}`)
	return b.String()
}
