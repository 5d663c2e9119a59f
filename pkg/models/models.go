// Package models defines the domain models for the automation hub.
package models

import (
	"encoding/json"
	"time"
)

// SystemStatus represents the lifecycle state of a registered system.
type SystemStatus string

const (
	SystemStatusScaffold SystemStatus = "scaffold"
	SystemStatusDeployed SystemStatus = "deployed"
	SystemStatusActive   SystemStatus = "active"
	SystemStatusInactive SystemStatus = "inactive"
)

// SystemCategory classifies what a system does.
type SystemCategory string

const (
	CategorySignals    SystemCategory = "signals"
	CategoryPipeline   SystemCategory = "pipeline"
	CategoryContent    SystemCategory = "content"
	CategoryOperations SystemCategory = "operations"
)

// System is a registered automation system. EndpointURL stays nil until the
// system has been deployed; APIKey is the shared secret its deployed endpoint
// expects in the X-API-Key header.
type System struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	Category    SystemCategory `json:"category"`
	Description string         `json:"description"`
	ChatContext string         `json:"chat_context"`
	EndpointURL *string        `json:"endpoint_url"`
	APIKey      string         `json:"api_key"`
	Status      SystemStatus   `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Deployed reports whether the system has a live endpoint.
func (s *System) Deployed() bool {
	return s.EndpointURL != nil && *s.EndpointURL != ""
}

// Well-known job statuses. Pipeline stages name their own intermediate
// statuses; only these three are fixed.
const (
	JobStatusReceived  = "received"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// TerminalStatus reports whether a job status permits no further transitions.
func TerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Job is one asynchronous unit of pipeline work. Result accumulates across
// stage updates: new keys are merged in, existing keys overwritten, none
// removed. Error is set only when the job reaches the failed status.
type Job struct {
	ID         string          `json:"id"`
	SystemSlug string          `json:"system_slug"`
	ClientID   string          `json:"client_id"`
	Status     string          `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Result     map[string]any  `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ChatTurn is a single turn of an intake conversation. The caller supplies
// the full history on every request; the server keeps no session state.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// QueueMessage is the unit handed from the submission endpoint to the worker.
type QueueMessage struct {
	JobID      string          `json:"job_id"`
	SystemSlug string          `json:"system_slug"`
	ClientID   string          `json:"client_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
