package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"automation-hub/backend/pkg/models"
)

// PostgresJobStore is a PostgreSQL implementation of the JobStore interface.
type PostgresJobStore struct {
	db *pgxpool.Pool
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

func (s *PostgresJobStore) Create(ctx context.Context, job *models.Job) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO jobs (id, system_slug, client_id, status, payload, result, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, '', $6, $7)
	`,
		job.ID,
		job.SystemSlug,
		job.ClientID,
		job.Status,
		[]byte(job.Payload),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	var (
		job     models.Job
		payload []byte
		result  []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, system_slug, client_id, status, payload, result, error, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`, id).Scan(
		&job.ID,
		&job.SystemSlug,
		&job.ClientID,
		&job.Status,
		&payload,
		&result,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}

	job.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		if err := json.Unmarshal(result, &job.Result); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
	}
	return &job, nil
}

// Progress merges the partial result into the stored jsonb and replaces the
// status. The WHERE clause keeps terminal jobs frozen.
func (s *PostgresJobStore) Progress(ctx context.Context, id, status string, partial map[string]any) error {
	encoded, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encode partial result: %w", err)
	}

	command, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2,
			result = coalesce(result, '{}'::jsonb) || $3::jsonb,
			updated_at = now()
		WHERE id = $1 AND status NOT IN ($4, $5)
	`, id, status, encoded, models.JobStatusCompleted, models.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if command.RowsAffected() == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

func (s *PostgresJobStore) Fail(ctx context.Context, id, errMsg string) error {
	command, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2,
			error = $3,
			updated_at = now()
		WHERE id = $1 AND status NOT IN ($2, $4)
	`, id, models.JobStatusFailed, errMsg, models.JobStatusCompleted)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if command.RowsAffected() == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

// classifyMiss distinguishes a missing row from a terminal one after a
// guarded UPDATE touched nothing.
func (s *PostgresJobStore) classifyMiss(ctx context.Context, id string) error {
	var status string
	err := s.db.QueryRow(ctx, "SELECT status FROM jobs WHERE id = $1", id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("query job status: %w", err)
	}
	if models.TerminalStatus(status) {
		return ErrJobTerminal
	}
	return ErrNotFound
}
