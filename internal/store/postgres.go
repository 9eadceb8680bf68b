package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediaforge/internal/domain"
)

// Postgres implements JobStore on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a job store backed by PostgreSQL.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    id               TEXT PRIMARY KEY,
    model            TEXT NOT NULL,
    status           TEXT NOT NULL,
    prompt           TEXT NOT NULL DEFAULT '',
    request          JSONB,
    response         JSONB,
    error            JSONB,
    files            JSONB,
    reasoning        JSONB,
    operation_handle TEXT NOT NULL DEFAULT '',
    attempt          INTEGER NOT NULL DEFAULT 0,
    next_poll_at     TIMESTAMPTZ,
    ttl_at           TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS jobs_running_due_idx ON jobs (next_poll_at) WHERE status = 'running';
`

// EnsureSchema creates the jobs table when it does not exist yet.
func (r *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Create inserts a new job record.
func (r *Postgres) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, model, status, prompt, request, response, error, files, reasoning,
                  operation_handle, attempt, next_poll_at, ttl_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14);
`
	errJSON, filesJSON, reasoningJSON, err := encodeAux(job)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.Model,
		job.Status,
		job.Prompt,
		nullableBytes(job.Request),
		nullableBytes(job.Response),
		errJSON,
		filesJSON,
		reasoningJSON,
		job.OperationHandle,
		job.Attempt,
		nullableTime(job.NextPollAt),
		nullableTime(job.TTLAt),
		job.CreatedAt,
	)
	return err
}

// Update persists every scheduler-owned field of the job.
func (r *Postgres) Update(ctx context.Context, job *domain.Job) error {
	query := `
UPDATE jobs
SET status = $2,
    model = $3,
    request = COALESCE($4, request),
    response = COALESCE($5, response),
    error = COALESCE($6, error),
    files = COALESCE($7, files),
    reasoning = COALESCE($8, reasoning),
    operation_handle = $9,
    attempt = $10,
    next_poll_at = $11,
    ttl_at = $12,
    updated_at = NOW()
WHERE id = $1;
`
	errJSON, filesJSON, reasoningJSON, err := encodeAux(job)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.Model,
		nullableBytes(job.Request),
		nullableBytes(job.Response),
		errJSON,
		filesJSON,
		reasoningJSON,
		job.OperationHandle,
		job.Attempt,
		nullableTime(job.NextPollAt),
		nullableTime(job.TTLAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get fetches a job by its identifier.
func (r *Postgres) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := selectColumns + ` WHERE id = $1;`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListRunningDue returns running jobs whose next poll time has passed.
func (r *Postgres) ListRunningDue(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	query := selectColumns + ` WHERE status = $1 AND next_poll_at <= $2;`
	rows, err := r.pool.Query(ctx, query, domain.JobStatusRunning, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const selectColumns = `
SELECT id, model, status, prompt, request, response, error, files, reasoning,
       operation_handle, attempt, next_poll_at, ttl_at, created_at, updated_at
FROM jobs`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job           domain.Job
		errJSON       []byte
		filesJSON     []byte
		reasoningJSON []byte
		nextPollAt    *time.Time
		ttlAt         *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&job.Model,
		&job.Status,
		&job.Prompt,
		&job.Request,
		&job.Response,
		&errJSON,
		&filesJSON,
		&reasoningJSON,
		&job.OperationHandle,
		&job.Attempt,
		&nextPollAt,
		&ttlAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if nextPollAt != nil {
		job.NextPollAt = *nextPollAt
	}
	if ttlAt != nil {
		job.TTLAt = *ttlAt
	}
	if len(errJSON) > 0 {
		if err := json.Unmarshal(errJSON, &job.Error); err != nil {
			return nil, fmt.Errorf("store: decode job error: %w", err)
		}
	}
	if len(filesJSON) > 0 {
		if err := json.Unmarshal(filesJSON, &job.Files); err != nil {
			return nil, fmt.Errorf("store: decode job files: %w", err)
		}
	}
	if len(reasoningJSON) > 0 {
		if err := json.Unmarshal(reasoningJSON, &job.Reasoning); err != nil {
			return nil, fmt.Errorf("store: decode job reasoning: %w", err)
		}
	}
	return &job, nil
}

func encodeAux(job *domain.Job) (errJSON, filesJSON, reasoningJSON []byte, err error) {
	if job.Error != nil {
		if errJSON, err = json.Marshal(job.Error); err != nil {
			return nil, nil, nil, fmt.Errorf("store: encode job error: %w", err)
		}
	}
	if len(job.Files) > 0 {
		if filesJSON, err = json.Marshal(job.Files); err != nil {
			return nil, nil, nil, fmt.Errorf("store: encode job files: %w", err)
		}
	}
	if len(job.Reasoning) > 0 {
		if reasoningJSON, err = json.Marshal(job.Reasoning); err != nil {
			return nil, nil, nil, fmt.Errorf("store: encode job reasoning: %w", err)
		}
	}
	return errJSON, filesJSON, reasoningJSON, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ JobStore = (*Postgres)(nil)
