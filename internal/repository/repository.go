// Package repository provides persistence for systems and jobs.
package repository

import (
	"context"
	"errors"

	"automation-hub/backend/pkg/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrSlugExists is returned when creating a system whose slug is taken.
	ErrSlugExists = errors.New("slug already exists")
	// ErrJobTerminal is returned when an update targets a job that has
	// already reached a terminal status.
	ErrJobTerminal = errors.New("job is in a terminal state")
)

// SystemFilter narrows List results. Zero values match everything.
type SystemFilter struct {
	Status   models.SystemStatus
	Category models.SystemCategory
}

// SystemStore is an interface for storing and retrieving systems.
type SystemStore interface {
	// Create inserts a new system record.
	Create(ctx context.Context, system *models.System) error
	// GetBySlug retrieves a system by its slug.
	GetBySlug(ctx context.Context, slug string) (*models.System, error)
	// List returns systems matching the filter.
	List(ctx context.Context, filter SystemFilter) ([]*models.System, error)
	// Update replaces the mutable fields of an existing system.
	Update(ctx context.Context, system *models.System) error
	// Delete removes a system record.
	Delete(ctx context.Context, slug string) error
}

// JobStore is the durable ledger of asynchronous pipeline work.
//
// Progress and Fail never move a job out of a terminal status; attempts to
// do so return ErrJobTerminal.
type JobStore interface {
	// Create inserts a new job. The record is readable as soon as Create returns.
	Create(ctx context.Context, job *models.Job) error
	// Get retrieves a job by its ID.
	Get(ctx context.Context, id string) (*models.Job, error)
	// Progress replaces the job status and merges partial into the
	// accumulated result: new keys added, existing keys overwritten,
	// no keys removed.
	Progress(ctx context.Context, id, status string, partial map[string]any) error
	// Fail marks the job failed with the given error message. The
	// accumulated result is left untouched for diagnostics.
	Fail(ctx context.Context, id, errMsg string) error
}
