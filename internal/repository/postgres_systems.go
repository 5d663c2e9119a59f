package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"automation-hub/backend/pkg/models"
)

// PostgresSystemStore is a PostgreSQL implementation of the SystemStore interface.
type PostgresSystemStore struct {
	db *pgxpool.Pool
}

// NewPostgresSystemStore creates a new PostgresSystemStore.
func NewPostgresSystemStore(db *pgxpool.Pool) *PostgresSystemStore {
	return &PostgresSystemStore{db: db}
}

const systemColumns = "id, slug, name, category, description, chat_context, endpoint_url, api_key, status, created_at, updated_at"

func (s *PostgresSystemStore) Create(ctx context.Context, system *models.System) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO systems (id, slug, name, category, description, chat_context, endpoint_url, api_key, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		system.ID,
		system.Slug,
		system.Name,
		string(system.Category),
		system.Description,
		system.ChatContext,
		system.EndpointURL,
		system.APIKey,
		string(system.Status),
		system.CreatedAt,
		system.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlugExists
		}
		return fmt.Errorf("insert system: %w", err)
	}
	return nil
}

func (s *PostgresSystemStore) GetBySlug(ctx context.Context, slug string) (*models.System, error) {
	row := s.db.QueryRow(ctx, "SELECT "+systemColumns+" FROM systems WHERE slug = $1", slug)
	return scanSystem(row)
}

func (s *PostgresSystemStore) List(ctx context.Context, filter SystemFilter) ([]*models.System, error) {
	query := strings.Builder{}
	query.WriteString("SELECT " + systemColumns + " FROM systems WHERE true")

	args := make([]any, 0, 2)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		query.WriteString(fmt.Sprintf(" AND category = $%d", len(args)))
	}
	query.WriteString(" ORDER BY created_at")

	rows, err := s.db.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	defer rows.Close()

	var systems []*models.System
	for rows.Next() {
		system, err := scanSystem(rows)
		if err != nil {
			return nil, err
		}
		systems = append(systems, system)
	}
	return systems, rows.Err()
}

func (s *PostgresSystemStore) Update(ctx context.Context, system *models.System) error {
	command, err := s.db.Exec(ctx, `
		UPDATE systems
		SET name = $2,
			category = $3,
			description = $4,
			chat_context = $5,
			endpoint_url = $6,
			status = $7,
			updated_at = $8
		WHERE slug = $1
	`,
		system.Slug,
		system.Name,
		string(system.Category),
		system.Description,
		system.ChatContext,
		system.EndpointURL,
		string(system.Status),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update system: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresSystemStore) Delete(ctx context.Context, slug string) error {
	command, err := s.db.Exec(ctx, "DELETE FROM systems WHERE slug = $1", slug)
	if err != nil {
		return fmt.Errorf("delete system: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSystem(row pgx.Row) (*models.System, error) {
	var (
		system   models.System
		category string
		status   string
	)
	err := row.Scan(
		&system.ID,
		&system.Slug,
		&system.Name,
		&category,
		&system.Description,
		&system.ChatContext,
		&system.EndpointURL,
		&system.APIKey,
		&status,
		&system.CreatedAt,
		&system.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan system: %w", err)
	}
	system.Category = models.SystemCategory(category)
	system.Status = models.SystemStatus(status)
	return &system, nil
}
