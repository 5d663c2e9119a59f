// Package videoad generates short-form UGC video ads through a fixed stage
// sequence: scripts, character images, per-chunk clips, assembly, publish.
package videoad

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
	"automation-hub/backend/internal/media"
	"automation-hub/backend/internal/pipeline"
	"automation-hub/backend/pkg/models"
)

const SystemSlug = "generate-ai-video-ads"

// Request is the validated submission payload. The client identity travels
// on the job record, not in the payload.
type Request struct {
	ProductPhotos      []string `json:"product_photos"`
	ProductBrief       string   `json:"product_brief"`
	ProductInteraction string   `json:"product_interaction"` // wearing, holding, using
	CameraAngle        string   `json:"camera_angle"`        // full_body, waist_up, close_up
	TargetAudience     string   `json:"target_audience,omitempty"`
	BrandReferenceURL  string   `json:"brand_reference_url,omitempty"`
}

func (r *Request) validate() error {
	if len(r.ProductPhotos) == 0 {
		return fmt.Errorf("product_photos is required")
	}
	if strings.TrimSpace(r.ProductBrief) == "" {
		return fmt.Errorf("product_brief is required")
	}
	switch r.ProductInteraction {
	case "wearing", "holding", "using":
	default:
		return fmt.Errorf("invalid product_interaction %q", r.ProductInteraction)
	}
	switch r.CameraAngle {
	case "full_body", "waist_up", "close_up":
	default:
		return fmt.Errorf("invalid camera_angle %q", r.CameraAngle)
	}
	return nil
}

// ScriptChunk is an 8-10 second narration segment.
type ScriptChunk struct {
	ChunkID          int    `json:"chunk_id"`
	Text             string `json:"text"`
	DurationEstimate int    `json:"duration_estimate"`
}

// Script is one complete ad script broken into chunks.
type Script struct {
	ScriptID  string        `json:"script_id"`
	HookAngle string        `json:"hook_angle"`
	FullText  string        `json:"full_text"`
	Chunks    []ScriptChunk `json:"chunks"`
}

// MediaGenerator is the slice of the media client the pipeline needs.
type MediaGenerator interface {
	TextToImage(ctx context.Context, req media.ImageRequest) (string, error)
	TextToSpeech(ctx context.Context, text, refVoiceURL string) (string, error)
	ImageToVideo(ctx context.Context, imageURL, prompt string) (string, error)
}

// ArtifactStore re-homes provider artifacts into durable storage and moves
// bytes between storage and the local work dir.
type ArtifactStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	UploadFromURL(ctx context.Context, path, srcURL string) (string, error)
	Download(ctx context.Context, url, destPath string) error
}

type Config struct {
	LLM         llm.Client
	Media       MediaGenerator
	Store       ArtifactStore
	RefVoiceURL string
	FFmpeg      string
	HTTPClient  *http.Client
	Logger      *logging.Logger
}

// Pipeline implements pipeline.Pipeline for the video-ad system.
type Pipeline struct {
	llm         llm.Client
	media       MediaGenerator
	store       ArtifactStore
	refVoiceURL string
	ffmpeg      string
	httpClient  *http.Client
	logger      *logging.Logger
}

func New(config Config) *Pipeline {
	if config.FFmpeg == "" {
		config.FFmpeg = "ffmpeg"
	}
	if config.RefVoiceURL == "" {
		config.RefVoiceURL = "https://fal.media/files/monkey/Tx_dev_S5-JgJ7c8w8L7j.wav"
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &Pipeline{
		llm:         config.LLM,
		media:       config.Media,
		store:       config.Store,
		refVoiceURL: config.RefVoiceURL,
		ffmpeg:      config.FFmpeg,
		httpClient:  config.HTTPClient,
		logger:      config.Logger,
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
		{Status: "scripts_generated", Run: r.generateScripts},
		{Status: "images_generated", Run: r.generateCharacterImages},
		{Status: "clips_produced", Run: r.produceClips},
		{Status: "assembled", Run: r.assemble},
		{Status: models.JobStatusCompleted, Run: r.publish},
	}, nil
}

type clip struct {
	index int
	audio string
	video string
}

// run holds the state flowing between stages of one job.
type run struct {
	p   *Pipeline
	req *Request

	scripts     []Script
	productDesc string
	charImages  []string
	clips       []clip
	finalPath   string
}

func (r *run) generateScripts(ctx context.Context, job *pipeline.Job) (map[string]any, error) {
	brandContext := ""
	if r.req.BrandReferenceURL != "" {
		fetched, err := r.fetchBrandContext(ctx, r.req.BrandReferenceURL)
		if err != nil {
			// Brand context is flavor, not a contract; continue without it.
			r.p.logger.Warn("job %s: brand context fetch failed: %v", job.ID, err)
		} else {
			brandContext = fetched
		}
	}

	reply, err := r.p.llm.Generate(ctx, llm.Request{
		Message:  scriptPrompt(r.req, brandContext),
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Scripts []Script `json:"scripts"`
	}
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return nil, fmt.Errorf("decode scripts: %w", err)
	}
	if len(parsed.Scripts) == 0 {
		return nil, fmt.Errorf("model produced no scripts")
	}
	r.scripts = parsed.Scripts

	return map[string]any{"scripts": parsed.Scripts}, nil
}

func (r *run) generateCharacterImages(ctx context.Context, job *pipeline.Job) (map[string]any, error) {
	desc, err := r.p.llm.Generate(ctx, llm.Request{Message: productDescriptionPrompt(r.req)})
	if err != nil {
		return nil, err
	}
	r.productDesc = strings.TrimSpace(desc)

	prompt := characterImagePrompt(r.req, r.productDesc)
	urls := make([]string, 0, 3)
	for i := range 3 {
		providerURL, err := r.p.media.TextToImage(ctx, media.ImageRequest{
			Prompt: prompt,
			Seed:   i*1000 + 42,
		})
		if err != nil {
			return nil, err
		}
		stored, err := r.p.store.UploadFromURL(ctx,
			fmt.Sprintf("jobs/%s/character/variation-%d.png", job.ID, i+1), providerURL)
		if err != nil {
			return nil, err
		}
		urls = append(urls, stored)
	}
	r.charImages = urls

	return map[string]any{
		"character_images":    urls,
		"product_description": r.productDesc,
	}, nil
}

func (r *run) produceClips(ctx context.Context, job *pipeline.Job) (map[string]any, error) {
	// Defaults: first script, first character variation.
	script := r.scripts[0]
	character := r.charImages[0]

	for i, chunk := range script.Chunks {
		audioURL, err := r.p.media.TextToSpeech(ctx, chunk.Text, r.p.refVoiceURL)
		if err != nil {
			return nil, err
		}
		storedAudio, err := r.p.store.UploadFromURL(ctx,
			fmt.Sprintf("jobs/%s/audio/chunk-%d.wav", job.ID, i), audioURL)
		if err != nil {
			return nil, err
		}
		localAudio := filepath.Join(job.WorkDir, fmt.Sprintf("audio_%d.wav", i))
		if err := r.p.store.Download(ctx, storedAudio, localAudio); err != nil {
			return nil, err
		}

		videoURL, err := r.p.media.ImageToVideo(ctx, character, chunk.Text)
		if err != nil {
			return nil, err
		}
		storedVideo, err := r.p.store.UploadFromURL(ctx,
			fmt.Sprintf("jobs/%s/video/chunk-%d.mp4", job.ID, i), videoURL)
		if err != nil {
			return nil, err
		}
		localVideo := filepath.Join(job.WorkDir, fmt.Sprintf("video_%d.mp4", i))
		if err := r.p.store.Download(ctx, storedVideo, localVideo); err != nil {
			return nil, err
		}

		r.clips = append(r.clips, clip{index: i, audio: localAudio, video: localVideo})
	}

	return map[string]any{"clip_count": len(r.clips)}, nil
}

func (r *run) assemble(ctx context.Context, job *pipeline.Job) (map[string]any, error) {
	listPath := filepath.Join(job.WorkDir, "concat.txt")
	var list strings.Builder

	for _, c := range r.clips {
		outClip := filepath.Join(job.WorkDir, fmt.Sprintf("final_clip_%d.mp4", c.index))
		if err := runFFmpeg(ctx, r.p.ffmpeg, buildMuxArgs(c.video, c.audio, outClip)); err != nil {
			return nil, err
		}
		fmt.Fprintf(&list, "file '%s'\n", filepath.Base(outClip))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return nil, fmt.Errorf("write concat list: %w", err)
	}

	r.finalPath = filepath.Join(job.WorkDir, "final_ad.mp4")
	if err := runFFmpeg(ctx, r.p.ffmpeg, buildConcatArgs(listPath, r.finalPath)); err != nil {
		return nil, err
	}

	return map[string]any{"assembled_clips": len(r.clips)}, nil
}

func (r *run) publish(ctx context.Context, job *pipeline.Job) (map[string]any, error) {
	data, err := os.ReadFile(r.finalPath)
	if err != nil {
		return nil, fmt.Errorf("read final video: %w", err)
	}
	finalURL, err := r.p.store.Upload(ctx, fmt.Sprintf("jobs/%s/final_ad.mp4", job.ID), data, "video/mp4")
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"final_video_url":          finalURL,
		"selected_script_id":       r.scripts[0].ScriptID,
		"selected_character_image": r.charImages[0],
	}, nil
}

// fetchBrandContext pulls raw text from the brand reference page, truncated
// to keep the prompt bounded.
func (r *run) fetchBrandContext(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
