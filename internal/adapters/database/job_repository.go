package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

type PostgresJobRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJobRepository(pool *pgxpool.Pool) *PostgresJobRepository {
	return &PostgresJobRepository{pool: pool}
}

const jobColumns = `id, workspace_id, job_type, status, scheduled_for, attempts, max_attempts,
	payload, result, last_error, started_at, completed_at, created_at, updated_at`

// execer is satisfied by both *pgxpool.Pool and pgx.Tx, so job inserts
// can run standalone or inside an enrollment transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func insertJob(ctx context.Context, db execer, job *domain.BackgroundJob) error {
	_, err := db.Exec(ctx, `
		INSERT INTO background_jobs
			(id, workspace_id, job_type, status, scheduled_for, attempts, max_attempts, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.WorkspaceID, job.Type, job.Status, job.ScheduledFor,
		job.Attempts, job.MaxAttempts, job.Payload)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobRepository) CreateJob(ctx context.Context, job *domain.BackgroundJob) error {
	return insertJob(ctx, r.pool, job)
}

func (r *PostgresJobRepository) GetJob(ctx context.Context, workspaceID, id string) (*domain.BackgroundJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM background_jobs
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (r *PostgresJobRepository) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.BackgroundJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + jobColumns + ` FROM background_jobs WHERE workspace_id = $1`
	args := []interface{}{filter.WorkspaceID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND job_type = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY scheduled_for DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ClaimDueJobs is the single correctness-critical statement in the
// queue: the CTE locks due pending rows with SKIP LOCKED and the UPDATE
// flips them to processing in the same statement, so two overlapping
// processor invocations can never claim the same job. Losers of the
// row lock simply see fewer rows.
func (r *PostgresJobRepository) ClaimDueJobs(ctx context.Context, limit int) ([]*domain.BackgroundJob, error) {
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM background_jobs
			WHERE status = 'pending'
			  AND scheduled_for <= NOW()
			ORDER BY scheduled_for ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE background_jobs j
		SET status     = 'processing',
		    started_at = NOW(),
		    updated_at = NOW()
		FROM due
		WHERE j.id = due.id
		RETURNING j.id, j.workspace_id, j.job_type, j.status, j.scheduled_for, j.attempts,
			j.max_attempts, j.payload, j.result, j.last_error, j.started_at, j.completed_at,
			j.created_at, j.updated_at`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ReclaimStuckJobs sweeps claims orphaned by a crashed worker back to
// pending. started_at marks the claim time, so age is measured from the
// moment the job left the queue.
func (r *PostgresJobRepository) ReclaimStuckJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE background_jobs
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing'
		  AND started_at < NOW() - make_interval(secs => $1)`,
		olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresJobRepository) MarkCompleted(ctx context.Context, id string, result json.RawMessage) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE background_jobs
		SET status = 'completed', result = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`, id, result)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *PostgresJobRepository) MarkFailed(ctx context.Context, id string, attempts int, jobErr string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE background_jobs
		SET status = 'failed', attempts = $2, last_error = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`, id, attempts, jobErr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *PostgresJobRepository) MarkRetry(ctx context.Context, id string, attempts int, runAt time.Time, jobErr string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE background_jobs
		SET status = 'pending', attempts = $2, scheduled_for = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`, id, attempts, runAt, jobErr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *PostgresJobRepository) CancelPending(ctx context.Context, workspaceID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE background_jobs
		SET status = 'cancelled', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2 AND status = 'pending'`, id, workspaceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresJobRepository) CancelPendingSequenceStepJobs(ctx context.Context, workspaceID, enrollmentID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE background_jobs
		SET status = 'cancelled', completed_at = NOW(), updated_at = NOW()
		WHERE workspace_id = $1
		  AND job_type = 'sequence_step'
		  AND status = 'pending'
		  AND payload->>'enrollment_id' = $2`, workspaceID, enrollmentID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresJobRepository) CountByStatus(ctx context.Context, workspaceID string) (*domain.JobStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM background_jobs
		WHERE workspace_id = $1
		GROUP BY status`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.JobStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch domain.JobStatus(status) {
		case domain.JobStatusPending:
			stats.Pending = count
		case domain.JobStatusProcessing:
			stats.Processing = count
		case domain.JobStatusCompleted:
			stats.Completed = count
		case domain.JobStatusFailed:
			stats.Failed = count
		case domain.JobStatusCancelled:
			stats.Cancelled = count
		}
	}
	return stats, rows.Err()
}

func (r *PostgresJobRepository) CountDueJobs(ctx context.Context, workspaceID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM background_jobs
		WHERE workspace_id = $1 AND status = 'pending' AND scheduled_for <= NOW()`,
		workspaceID).Scan(&count)
	return count, err
}

func scanJob(row pgx.Row) (*domain.BackgroundJob, error) {
	job := &domain.BackgroundJob{}
	var jobType, status string
	err := row.Scan(
		&job.ID, &job.WorkspaceID, &jobType, &status, &job.ScheduledFor,
		&job.Attempts, &job.MaxAttempts, &job.Payload, &job.Result,
		&job.LastError, &job.StartedAt, &job.CompletedAt,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	return job, nil
}

func scanJobs(rows pgx.Rows) ([]*domain.BackgroundJob, error) {
	var jobs []*domain.BackgroundJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
