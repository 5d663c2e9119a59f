// Package llm talks to the large-language-model inference service.
package llm

import (
	"context"

	"automation-hub/backend/pkg/models"
)

// Request is one inference call. History carries the full prior conversation
// (the engine is stateless); Message is the new user utterance. With an empty
// History and Message carrying a standalone prompt this doubles as the
// single-shot mode used for intro generation.
type Request struct {
	SystemInstruction string
	History           []models.ChatTurn
	Message           string
	// JSONMode asks the model to emit a single JSON document.
	JSONMode bool
}

// Client is an interface for LLM inference backends.
type Client interface {
	// Generate returns the model's text reply for the request.
	Generate(ctx context.Context, req Request) (string, error)
}
