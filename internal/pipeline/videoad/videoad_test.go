package videoad

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-hub/backend/internal/llm"
	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/media"
	"automation-hub/backend/internal/pipeline"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/pkg/models"
)

const scriptsReply = `{
  "scripts": [
    {
      "script_id": "script_1",
      "hook_angle": "problem first",
      "full_text": "I used to hate cold coffee. Not anymore.",
      "chunks": [
        {"chunk_id": 1, "text": "I used to hate cold coffee.", "duration_estimate": 8},
        {"chunk_id": 2, "text": "Not anymore.", "duration_estimate": 8}
      ]
    }
  ]
}`

type llmFunc func(ctx context.Context, req llm.Request) (string, error)

func (f llmFunc) Generate(ctx context.Context, req llm.Request) (string, error) {
	return f(ctx, req)
}

func scriptedLLM() llm.Client {
	return llmFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.JSONMode {
			return scriptsReply, nil
		}
		return "A matte black insulated tumbler with a bamboo lid.", nil
	})
}

type fakeMedia struct {
	ttsErr    error
	ttsCalls  atomic.Int32
	i2vPrompt []string
}

func (m *fakeMedia) TextToImage(_ context.Context, req media.ImageRequest) (string, error) {
	return fmt.Sprintf("https://provider.example/image-%d.png", req.Seed), nil
}

func (m *fakeMedia) TextToSpeech(_ context.Context, text, _ string) (string, error) {
	m.ttsCalls.Add(1)
	if m.ttsErr != nil {
		return "", m.ttsErr
	}
	return "https://provider.example/speech.wav", nil
}

func (m *fakeMedia) ImageToVideo(_ context.Context, _, prompt string) (string, error) {
	m.i2vPrompt = append(m.i2vPrompt, prompt)
	return "https://provider.example/clip.mp4", nil
}

type fakeStore struct {
	uploads []string
}

func (s *fakeStore) Upload(_ context.Context, path string, _ []byte, _ string) (string, error) {
	s.uploads = append(s.uploads, path)
	return "https://cdn.example/" + path, nil
}

func (s *fakeStore) UploadFromURL(_ context.Context, path, _ string) (string, error) {
	s.uploads = append(s.uploads, path)
	return "https://cdn.example/" + path, nil
}

func (s *fakeStore) Download(_ context.Context, _ string, destPath string) error {
	return os.WriteFile(destPath, []byte("media bytes"), 0o644)
}

// fakeFFmpeg writes a shell stub that creates its last argument, matching
// ffmpeg's exit-code-zero contract without encoding anything.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\neval \"out=\\${$#}\"\n: > \"$out\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func validPayload() json.RawMessage {
	return json.RawMessage(`{
		"product_photos": ["https://shop.example/tumbler.jpg"],
		"product_brief": "Insulated tumbler that keeps coffee hot for 8 hours",
		"product_interaction": "holding",
		"camera_angle": "waist_up",
		"target_audience": "commuters"
	}`)
}

func TestStagesRejectsInvalidPayload(t *testing.T) {
	p := New(Config{LLM: scriptedLLM(), Media: &fakeMedia{}, Store: &fakeStore{}, Logger: logging.NewLogger()})

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"not json", `{"product_photos":`, "decode payload"},
		{"missing photos", `{"product_brief":"x","product_interaction":"holding","camera_angle":"close_up"}`, "product_photos"},
		{"bad interaction", `{"product_photos":["u"],"product_brief":"x","product_interaction":"juggling","camera_angle":"close_up"}`, "product_interaction"},
		{"bad angle", `{"product_photos":["u"],"product_brief":"x","product_interaction":"using","camera_angle":"dutch"}`, "camera_angle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Stages(&pipeline.Job{ID: "j1", Payload: json.RawMessage(tt.payload)})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunProducesFinalAd(t *testing.T) {
	gen := &fakeMedia{}
	store := &fakeStore{}
	p := New(Config{
		LLM:    scriptedLLM(),
		Media:  gen,
		Store:  store,
		FFmpeg: fakeFFmpeg(t),
		Logger: logging.NewLogger(),
	})

	jobs := repository.NewMemoryJobStore()
	job := &models.Job{ID: "job-1", SystemSlug: SystemSlug, ClientID: "client-1", Status: models.JobStatusReceived, Payload: validPayload()}
	require.NoError(t, jobs.Create(context.Background(), job))

	err := pipeline.Run(context.Background(), jobs, p, &pipeline.Job{
		ID: job.ID, SystemSlug: job.SystemSlug, ClientID: job.ClientID, Payload: job.Payload,
	}, logging.NewLogger())
	require.NoError(t, err)

	got, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, "https://cdn.example/jobs/job-1/final_ad.mp4", got.Result["final_video_url"])
	assert.Equal(t, "script_1", got.Result["selected_script_id"])
	assert.Equal(t, 2, got.Result["clip_count"])

	// Three character variations plus two audio and two video chunks plus the final.
	assert.Len(t, store.uploads, 8)
	assert.Equal(t, int32(2), gen.ttsCalls.Load())
	// Clip prompts carry the chunk narration.
	require.Len(t, gen.i2vPrompt, 2)
	assert.Equal(t, "I used to hate cold coffee.", gen.i2vPrompt[0])
}

func TestRunHaltsOnMediaFailure(t *testing.T) {
	gen := &fakeMedia{ttsErr: fmt.Errorf("provider rejected request")}
	p := New(Config{
		LLM:    scriptedLLM(),
		Media:  gen,
		Store:  &fakeStore{},
		FFmpeg: fakeFFmpeg(t),
		Logger: logging.NewLogger(),
	})

	jobs := repository.NewMemoryJobStore()
	job := &models.Job{ID: "job-2", SystemSlug: SystemSlug, Status: models.JobStatusReceived, Payload: validPayload()}
	require.NoError(t, jobs.Create(context.Background(), job))

	err := pipeline.Run(context.Background(), jobs, p, &pipeline.Job{ID: job.ID, Payload: job.Payload}, logging.NewLogger())
	require.Error(t, err)

	got, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "provider rejected request")
	// Script and image stages committed before the halt; no clip keys after.
	assert.Contains(t, got.Result, "scripts")
	assert.Contains(t, got.Result, "character_images")
	assert.NotContains(t, got.Result, "clip_count")
	assert.Equal(t, int32(1), gen.ttsCalls.Load())
}

func TestBuildMuxArgs(t *testing.T) {
	args := buildMuxArgs("v.mp4", "a.wav", "out.mp4")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-c:v copy")
	assert.Contains(t, joined, "-c:a aac")
	assert.Contains(t, joined, "-shortest")
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestBuildConcatArgs(t *testing.T) {
	args := buildConcatArgs("list.txt", "final.mp4")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f concat")
	assert.Contains(t, joined, "-safe 0")
	assert.Contains(t, joined, "-i list.txt")
	assert.Equal(t, "final.mp4", args[len(args)-1])
}
