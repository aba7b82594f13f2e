package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"transcription-service/internal/entity"
	"transcription-service/internal/repository"
)

// foreign_key_violation: the job row vanished under a concurrent delete.
const pgForeignKeyViolation = "23503"

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, owner_id, filename, mime_type, stored_path, size_bytes, status, created_at, updated_at`

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		job        entity.Job
		statusText string
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Filename,
		&job.MimeType,
		&job.StoredPath,
		&job.SizeBytes,
		&statusText,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	job.Status = entity.JobStatus(statusText)
	return &job, nil
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	id := job.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	const q = `
INSERT INTO jobs (id, owner_id, filename, mime_type, stored_path, size_bytes, status)
VALUES ($1, $2, $3, $4, $5, $6, 'PENDING')
RETURNING ` + jobColumns + `;
`
	return scanJob(r.pool.QueryRow(ctx, q,
		id, job.OwnerID, job.Filename, job.MimeType, job.StoredPath, job.SizeBytes,
	))
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	return scanJob(r.pool.QueryRow(ctx, q, id))
}

func (r *JobRepository) ListByOwner(ctx context.Context, ownerID string) ([]entity.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM jobs
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC;
`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]entity.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// UpdateStatus is a compare-and-set on the allowed predecessors of status.
// Entering COMPLETED also requires the transcript row to be present.
func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus) error {
	from := entity.Predecessors(status)
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	const q = `
UPDATE jobs SET status = $2::text, updated_at = now()
WHERE id = $1
  AND status = ANY($3::text[])
  AND ($2::text <> 'COMPLETED' OR EXISTS (SELECT 1 FROM transcripts t WHERE t.job_id = jobs.id));
`
	tag, err := r.pool.Exec(ctx, q, id, string(status), allowed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing changed: work out why.
	var current string
	if err := r.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1;`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	cur := entity.JobStatus(current)
	switch {
	case cur == status:
		return repository.ErrAlreadyInState
	case status == entity.StatusCompleted && entity.CanTransition(cur, status):
		return repository.ErrTranscriptMissing
	default:
		return repository.ErrInvalidTransition
	}
}

func (r *JobRepository) AttachTranscript(ctx context.Context, jobID uuid.UUID, text, model string) (*entity.Transcript, error) {
	const q = `
INSERT INTO transcripts (id, job_id, text, model_used)
SELECT $1, j.id, $3, $4
FROM jobs j
WHERE j.id = $2 AND j.status = 'PROCESSING'
ON CONFLICT (job_id) DO NOTHING
RETURNING id, job_id, text, model_used, created_at;
`
	var t entity.Transcript
	err := r.pool.QueryRow(ctx, q, uuid.New(), jobID, text, model).Scan(
		&t.ID, &t.JobID, &t.Text, &t.ModelUsed, &t.CreatedAt,
	)
	if err == nil {
		return &t, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return nil, repository.ErrNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	const why = `
SELECT j.status, EXISTS (SELECT 1 FROM transcripts t WHERE t.job_id = j.id)
FROM jobs j WHERE j.id = $1;
`
	var (
		status        string
		hasTranscript bool
	)
	if err := r.pool.QueryRow(ctx, why, jobID).Scan(&status, &hasTranscript); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if hasTranscript {
		return nil, repository.ErrTranscriptExists
	}
	return nil, repository.ErrInvalidTransition
}

func (r *JobRepository) GetTranscript(ctx context.Context, jobID uuid.UUID) (*entity.Transcript, error) {
	const q = `
SELECT id, job_id, text, model_used, created_at
FROM transcripts
WHERE job_id = $1;
`
	var t entity.Transcript
	if err := r.pool.QueryRow(ctx, q, jobID).Scan(&t.ID, &t.JobID, &t.Text, &t.ModelUsed, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Delete removes the job; the transcript goes with it via ON DELETE CASCADE.
func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ReconcileStale settles jobs left in PROCESSING by a crashed worker.
func (r *JobRepository) ReconcileStale(ctx context.Context, cutoff time.Time) (repository.ReconcileResult, error) {
	const q = `
WITH stale AS (
    SELECT j.id,
           EXISTS (SELECT 1 FROM transcripts t WHERE t.job_id = j.id) AS has_transcript
    FROM jobs j
    WHERE j.status = 'PROCESSING' AND j.updated_at < $1
    FOR UPDATE SKIP LOCKED
)
UPDATE jobs
SET status = CASE WHEN stale.has_transcript THEN 'COMPLETED' ELSE 'FAILED' END,
    updated_at = now()
FROM stale
WHERE jobs.id = stale.id AND jobs.status = 'PROCESSING'
RETURNING jobs.status;
`
	var res repository.ReconcileResult

	rows, err := r.pool.Query(ctx, q, cutoff)
	if err != nil {
		return res, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return res, err
		}
		switch entity.JobStatus(status) {
		case entity.StatusCompleted:
			res.Completed++
		case entity.StatusFailed:
			res.Failed++
		}
	}
	return res, rows.Err()
}
