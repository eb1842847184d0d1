package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, user_id, identifier_type, identifier_value, provider, provider_request_id, status, result_count,
	error_message, credits_consumed, reservation_id, estimated_minutes, created_at, updated_at, completed_at`

func (r *JobRepository) CreateJob(ctx context.Context, job *domain.AsyncSearchJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO async_search_jobs (`+jobColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		job.ID, job.UserID, string(job.IdentifierType), job.IdentifierValue, job.Provider, job.ProviderRequestID,
		string(job.Status), job.ResultCount, job.ErrorMessage, job.CreditsConsumed, job.ReservationID,
		job.EstimatedMinutes, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "create job", fmt.Errorf("%s request %s already tracked", job.Provider, job.ProviderRequestID))
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetJob(ctx context.Context, id string) (*domain.AsyncSearchJob, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM async_search_jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get job", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) GetJobByProviderRequest(ctx context.Context, provider, requestID string) (*domain.AsyncSearchJob, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM async_search_jobs
WHERE provider = $1 AND provider_request_id = $2
`, provider, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get job by provider request", fmt.Errorf("%s/%s", provider, requestID))
		}
		return nil, fmt.Errorf("get job by provider request: %w", err)
	}
	return &job, nil
}

// The transitions below only touch open jobs; the bool reports whether the
// row changed, so a job that is already terminal is left alone.

func (r *JobRepository) MarkJobProcessing(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.transition(ctx, "mark job processing", `
UPDATE async_search_jobs
SET status = 'processing', updated_at = $2
WHERE id = $1 AND status = 'pending'
`, id, at)
}

func (r *JobRepository) CompleteJob(ctx context.Context, id string, resultCount int, at time.Time) (bool, error) {
	return r.transition(ctx, "complete job", `
UPDATE async_search_jobs
SET status = 'completed', result_count = $2, updated_at = $3, completed_at = $3
WHERE id = $1 AND status IN ('pending', 'processing')
`, id, resultCount, at)
}

func (r *JobRepository) FailJob(ctx context.Context, id string, errMessage string, at time.Time) (bool, error) {
	return r.transition(ctx, "fail job", `
UPDATE async_search_jobs
SET status = 'failed', error_message = $2, updated_at = $3, completed_at = $3
WHERE id = $1 AND status IN ('pending', 'processing')
`, id, errMessage, at)
}

func (r *JobRepository) ListOpenJobs(ctx context.Context, createdBefore time.Time, limit int) ([]domain.AsyncSearchJob, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM async_search_jobs
WHERE status IN ('pending', 'processing') AND created_at < $1
ORDER BY created_at ASC
LIMIT $2
`, createdBefore, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list open jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AsyncSearchJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func (r *JobRepository) transition(ctx context.Context, operation, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", operation, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", operation, err)
	}
	return affected > 0, nil
}

func scanJob(row rowScanner) (domain.AsyncSearchJob, error) {
	var (
		job            domain.AsyncSearchJob
		identifierType string
		status         string
	)
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&identifierType,
		&job.IdentifierValue,
		&job.Provider,
		&job.ProviderRequestID,
		&status,
		&job.ResultCount,
		&job.ErrorMessage,
		&job.CreditsConsumed,
		&job.ReservationID,
		&job.EstimatedMinutes,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return domain.AsyncSearchJob{}, err
	}
	job.IdentifierType = domain.IdentifierType(identifierType)
	job.Status = domain.JobStatus(status)
	return job, nil
}
