// Package intake drives the conversational collection of a system's inputs.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"automation-hub/backend/internal/llm"
	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/internal/schema"
	"automation-hub/backend/pkg/models"
)

// ErrNotDeployed is returned when a system exists but has no endpoint yet.
var ErrNotDeployed = errors.New("system has not been deployed yet")

const defaultChatContext = "You are an intake assistant. Your job is to collect all required inputs from the user through a natural, conversational chat."

const systemPromptTemplate = `%s

Here is the JSON Schema describing the inputs you need to collect:

` + "```json\n%s\n```" + `

Rules:
1. Walk the user through the fields conversationally — one or two at a time. Never dump every field at once.
2. For enum fields, present the options as a clear numbered list and let the user pick.
3. For array fields (e.g. lists of URLs), let the user add items one at a time or paste several at once.
4. For optional fields, mention they are optional and ask if the user wants to provide a value.
5. For any field expecting a URL (photos, audio files, etc.), ask the user to upload the file and provide the resulting URL.
6. Keep your responses concise and friendly.
7. When ALL required fields are collected, display a clear summary of every value and ask the user to confirm.
8. If the user wants to change something, update the value and show the revised summary.
9. When the user confirms the summary, respond with **only** the following JSON block — no other text:

{"ready": true, "payload": { ... }}

The payload must conform to the schema (correct types, enum values, etc.). Do NOT include client_id — it is added automatically.`

// ReadyPayload is the machine-parseable finalization a conversation ends
// with: the assistant's entire reply is exactly one such JSON object.
type ReadyPayload struct {
	Ready   bool           `json:"ready"`
	Payload map[string]any `json:"payload"`
}

// Engine answers one intake turn at a time. It holds no session state; the
// caller supplies the full prior turn history on every request.
type Engine struct {
	systems  repository.SystemStore
	resolver *schema.Resolver
	llm      llm.Client
	logger   *logging.Logger
}

func NewEngine(systems repository.SystemStore, resolver *schema.Resolver, client llm.Client, logger *logging.Logger) *Engine {
	return &Engine{systems: systems, resolver: resolver, llm: client, logger: logger}
}

// Chat processes a single conversation turn for the given system and returns
// one assistant utterance. When the model declares a ready payload, the
// payload is validated against the resolved schema; a non-conforming payload
// is sent back to the model for correction instead of being passed through.
func (e *Engine) Chat(ctx context.Context, slug, message string, history []models.ChatTurn) (string, error) {
	system, inputSchema, err := e.resolve(ctx, slug)
	if err != nil {
		return "", err
	}

	instruction, err := buildSystemPrompt(system.ChatContext, inputSchema)
	if err != nil {
		return "", err
	}

	reply, err := e.llm.Generate(ctx, llm.Request{
		SystemInstruction: instruction,
		History:           history,
		Message:           message,
	})
	if err != nil {
		return "", err
	}

	ready, ok := ParseReady(reply)
	if !ok {
		return reply, nil
	}

	violations, err := validatePayload(inputSchema, ready.Payload)
	if err != nil {
		return "", err
	}
	if len(violations) == 0 {
		return reply, nil
	}

	// The model claimed readiness with a payload that does not conform to
	// the schema. Feed the violations back rather than trusting the claim.
	e.logger.Warn("ready payload for %q failed schema validation: %s", slug, strings.Join(violations, "; "))
	correction := fmt.Sprintf(
		"The payload does not conform to the schema: %s. Fix these values, show the corrected summary, and ask me to confirm again.",
		strings.Join(violations, "; "),
	)
	retry, err := e.llm.Generate(ctx, llm.Request{
		SystemInstruction: instruction,
		History:           append(append([]models.ChatTurn{}, history...), models.ChatTurn{Role: "user", Content: message}, models.ChatTurn{Role: "assistant", Content: reply}),
		Message:           correction,
	})
	if err != nil {
		return "", err
	}

	// A non-conforming ready object must never leave the engine, even on the
	// correction turn. If the model doubles down, degrade to a conversational
	// reply describing what still needs fixing.
	retryReady, ok := ParseReady(retry)
	if !ok {
		return retry, nil
	}
	retryViolations, err := validatePayload(inputSchema, retryReady.Payload)
	if err != nil {
		return "", err
	}
	if len(retryViolations) == 0 {
		return retry, nil
	}
	e.logger.Warn("corrected ready payload for %q is still invalid: %s", slug, strings.Join(retryViolations, "; "))
	return fmt.Sprintf(
		"Some of the collected values don't match what this system accepts: %s. Let's correct them before submitting.",
		strings.Join(retryViolations, "; "),
	), nil
}

// Intro produces a single opening utterance introducing the system and
// prompting for the first required field.
func (e *Engine) Intro(ctx context.Context, slug string) (string, error) {
	system, inputSchema, err := e.resolve(ctx, slug)
	if err != nil {
		return "", err
	}

	schemaJSON, err := json.MarshalIndent(inputSchema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}

	chatContext := system.ChatContext
	if strings.TrimSpace(chatContext) == "" {
		chatContext = defaultChatContext
	}
	prompt := fmt.Sprintf(`%s

Here is the input schema for this system:
%s

Generate a single, friendly welcome message introducing yourself and what you help with.
Ask about the first required field to get started. Keep it concise (2-3 sentences max).`,
		chatContext, schemaJSON)

	return e.llm.Generate(ctx, llm.Request{Message: prompt})
}

// resolve checks the intake preconditions and returns the system record plus
// its resolved input schema.
func (e *Engine) resolve(ctx context.Context, slug string) (*models.System, map[string]any, error) {
	system, err := e.systems.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("system %q: %w", slug, repository.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("look up system %q: %w", slug, err)
	}
	if !system.Deployed() {
		return nil, nil, fmt.Errorf("system %q: %w", slug, ErrNotDeployed)
	}

	inputSchema, err := e.resolver.Resolve(ctx, *system.EndpointURL, slug)
	if err != nil {
		return nil, nil, err
	}
	return system, inputSchema, nil
}

func buildSystemPrompt(chatContext string, inputSchema map[string]any) (string, error) {
	if strings.TrimSpace(chatContext) == "" {
		chatContext = defaultChatContext
	}
	schemaJSON, err := json.MarshalIndent(inputSchema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	return fmt.Sprintf(systemPromptTemplate, chatContext, schemaJSON), nil
}

// ParseReady reports whether reply is exactly one ready JSON object, allowing
// for a surrounding markdown code fence.
func ParseReady(reply string) (*ReadyPayload, bool) {
	text := strings.TrimSpace(reply)
	if fenced, ok := strings.CutPrefix(text, "```json"); ok {
		text = fenced
	} else if fenced, ok := strings.CutPrefix(text, "```"); ok {
		text = fenced
	}
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))

	if !strings.HasPrefix(text, "{") {
		return nil, false
	}

	decoder := json.NewDecoder(strings.NewReader(text))
	var ready ReadyPayload
	if err := decoder.Decode(&ready); err != nil {
		return nil, false
	}
	// The object must be the entire response, not a prefix of it.
	if decoder.More() {
		return nil, false
	}
	if !ready.Ready || ready.Payload == nil {
		return nil, false
	}
	return &ready, true
}

// validatePayload checks payload against the resolved schema and returns
// human-readable violation descriptions.
func validatePayload(inputSchema map[string]any, payload map[string]any) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(inputSchema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("validate ready payload: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return violations, nil
}
