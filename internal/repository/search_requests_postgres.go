package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/food-search-pipeline/internal/domain"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS search_requests (
		id          uuid        PRIMARY KEY,
		tags        text[]      NOT NULL DEFAULT '{}',
		file_path   text        NULL,
		status      text        NOT NULL DEFAULT 'pending',
		created_at  timestamptz NOT NULL DEFAULT now(),
		finished_at timestamptz NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ix_search_requests_id ON search_requests (id)`,
	`CREATE INDEX IF NOT EXISTS ix_search_requests_status ON search_requests (status)`,
}

const selectColumns = `id::text, tags, file_path, status, created_at, finished_at`

type PostgresSearchRequests struct {
	pool *pgxpool.Pool
}

func NewPostgresSearchRequests(ctx context.Context, databaseURL string) (*PostgresSearchRequests, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresSearchRequests{pool: pool}, nil
}

func (r *PostgresSearchRequests) Close() {
	r.pool.Close()
}

func (r *PostgresSearchRequests) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Migrate creates the schema. Every statement is idempotent.
func (r *PostgresSearchRequests) Migrate(ctx context.Context) error {
	for i, statement := range migrations {
		if _, err := r.pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *PostgresSearchRequests) Create(ctx context.Context, request *domain.SearchRequest) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO search_requests (id, tags, file_path, status, created_at, finished_at)
		VALUES ($1::uuid, $2, NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`,
		request.ID.String(),
		request.Tags,
		request.FilePath,
		string(request.Status),
		request.CreatedAt,
		request.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert search request: %w", err)
	}
	return nil
}

func (r *PostgresSearchRequests) Get(ctx context.Context, id uuid.UUID) (*domain.SearchRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM search_requests WHERE id = $1::uuid`, id.String())
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query search request: %w", err)
	}
	return request, nil
}

func (r *PostgresSearchRequests) Complete(
	ctx context.Context,
	id uuid.UUID,
	filePath string,
	finishedAt time.Time,
) (*domain.SearchRequest, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE search_requests
		SET status = 'completed',
			file_path = CASE WHEN status = 'completed' THEN file_path ELSE $2 END,
			finished_at = CASE WHEN status = 'completed' THEN finished_at ELSE $3 END
		WHERE id = $1::uuid AND status IN ('pending', 'completed')
		RETURNING `+selectColumns,
		id.String(), filePath, finishedAt.UTC(),
	)
	request, err := scanRequest(row)
	if err == nil {
		return request, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("complete search request: %w", err)
	}
	return nil, r.missingOrConflict(ctx, id)
}

func (r *PostgresSearchRequests) Fail(ctx context.Context, id uuid.UUID, finishedAt time.Time) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE search_requests
		SET status = 'failed',
			finished_at = COALESCE(finished_at, $2)
		WHERE id = $1::uuid AND status IN ('pending', 'failed')
	`, id.String(), finishedAt.UTC())
	if err != nil {
		return fmt.Errorf("fail search request: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

func (r *PostgresSearchRequests) missingOrConflict(ctx context.Context, id uuid.UUID) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM search_requests WHERE id = $1::uuid`, id.String()).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query search request status: %w", err)
	}
	return fmt.Errorf("%w: status is %s", ErrStatusConflict, status)
}

func scanRequest(row pgx.Row) (*domain.SearchRequest, error) {
	var (
		request    domain.SearchRequest
		id         string
		filePath   *string
		status     string
		finishedAt *time.Time
	)
	if err := row.Scan(&id, &request.Tags, &filePath, &status, &request.CreatedAt, &finishedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse search request id: %w", err)
	}
	request.ID = parsed
	request.Status = domain.RequestStatus(status)
	if filePath != nil {
		request.FilePath = *filePath
	}
	request.FinishedAt = finishedAt
	return &request, nil
}
