package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

type PostgresEnrollmentRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresEnrollmentRepository(pool *pgxpool.Pool) *PostgresEnrollmentRepository {
	return &PostgresEnrollmentRepository{pool: pool}
}

const enrollmentColumns = `id, workspace_id, sequence_id, customer_id, crm_job_id, current_step,
	status, started_at, next_step_at, completed_at, stopped_at, stop_reason, created_at, updated_at`

// CreateEnrollment inserts the enrollment and its first step job in one
// transaction. Two racing enrollments for the same customer both pass
// the service-level pre-check; the partial unique index on active
// enrollments rejects the loser here, surfaced as ErrAlreadyEnrolled.
func (r *PostgresEnrollmentRepository) CreateEnrollment(ctx context.Context, e *domain.SequenceEnrollment, stepJob *domain.BackgroundJob) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sequence_enrollments
			(id, workspace_id, sequence_id, customer_id, crm_job_id, current_step, status, started_at, next_step_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.WorkspaceID, e.SequenceID, e.CustomerID, e.CRMJobID,
		e.CurrentStep, e.Status, e.StartedAt, e.NextStepAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyEnrolled
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if stepJob != nil {
		if err := insertJob(ctx, tx, stepJob); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// 23505 is unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresEnrollmentRepository) GetEnrollment(ctx context.Context, workspaceID, id string) (*domain.SequenceEnrollment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+enrollmentColumns+`
		FROM sequence_enrollments
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID)

	e, err := scanEnrollment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *PostgresEnrollmentRepository) ListEnrollments(ctx context.Context, filter domain.EnrollmentFilter) ([]*domain.SequenceEnrollment, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + enrollmentColumns + ` FROM sequence_enrollments WHERE workspace_id = $1`
	args := []interface{}{filter.WorkspaceID}

	if filter.SequenceID != "" {
		args = append(args, filter.SequenceID)
		query += fmt.Sprintf(" AND sequence_id = $%d", len(args))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEnrollments(rows)
}

func (r *PostgresEnrollmentRepository) GetActiveEnrollment(ctx context.Context, workspaceID, sequenceID, customerID string) (*domain.SequenceEnrollment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+enrollmentColumns+`
		FROM sequence_enrollments
		WHERE workspace_id = $1 AND sequence_id = $2 AND customer_id = $3 AND status = 'active'`,
		workspaceID, sequenceID, customerID)

	e, err := scanEnrollment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// AdvanceEnrollment is conditioned on the row still sitting at fromStep
// so a redelivered step job cannot double-advance. The next step's job
// is inserted in the same transaction: either the enrollment moves and
// its job exists, or neither happened and the caller's job retries.
func (r *PostgresEnrollmentRepository) AdvanceEnrollment(ctx context.Context, id string, fromStep int, nextStepAt *time.Time, nextJob *domain.BackgroundJob) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin advance tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE sequence_enrollments
		SET current_step = $2 + 1, next_step_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND current_step = $2`, id, fromStep, nextStepAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if nextJob != nil {
		if err := insertJob(ctx, tx, nextJob); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresEnrollmentRepository) CompleteEnrollment(ctx context.Context, id string, fromStep int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_enrollments
		SET status = 'completed', next_step_at = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND current_step = $2`, id, fromStep)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresEnrollmentRepository) TerminateEnrollment(ctx context.Context, workspaceID, id string, status domain.EnrollmentStatus, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_enrollments
		SET status = $3, next_step_at = NULL, stopped_at = NOW(), stop_reason = $4, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2 AND status IN ('active', 'paused')`,
		id, workspaceID, status, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresEnrollmentRepository) PauseEnrollment(ctx context.Context, id string, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequence_enrollments
		SET status = 'paused', stop_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`, id, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ResumeEnrollments flips a sequence's paused enrollments back to
// active and returns them so the caller can reschedule their current
// steps.
func (r *PostgresEnrollmentRepository) ResumeEnrollments(ctx context.Context, workspaceID, sequenceID string) ([]*domain.SequenceEnrollment, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE sequence_enrollments
		SET status = 'active', stop_reason = NULL, updated_at = NOW()
		WHERE workspace_id = $1 AND sequence_id = $2 AND status = 'paused'
		RETURNING `+enrollmentColumns, workspaceID, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEnrollments(rows)
}

func (r *PostgresEnrollmentRepository) CountActiveEnrollments(ctx context.Context, workspaceID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sequence_enrollments
		WHERE workspace_id = $1 AND status = 'active'`, workspaceID).Scan(&count)
	return count, err
}

func (r *PostgresEnrollmentRepository) SequenceStats(ctx context.Context, workspaceID, sequenceID string) (*domain.SequenceStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM sequence_enrollments
		WHERE workspace_id = $1 AND sequence_id = $2
		GROUP BY status`, workspaceID, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.SequenceStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.TotalEnrolled += count
		switch domain.EnrollmentStatus(status) {
		case domain.EnrollmentActive:
			stats.Active = count
		case domain.EnrollmentCompleted:
			stats.TotalCompleted = count
		case domain.EnrollmentConverted:
			stats.TotalConverted = count
		case domain.EnrollmentStopped, domain.EnrollmentUnsubscribed:
			stats.Stopped += count
		}
	}
	return stats, rows.Err()
}

func scanEnrollment(row pgx.Row) (*domain.SequenceEnrollment, error) {
	e := &domain.SequenceEnrollment{}
	var status string
	err := row.Scan(
		&e.ID, &e.WorkspaceID, &e.SequenceID, &e.CustomerID, &e.CRMJobID,
		&e.CurrentStep, &status, &e.StartedAt, &e.NextStepAt,
		&e.CompletedAt, &e.StoppedAt, &e.StopReason,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = domain.EnrollmentStatus(status)
	return e, nil
}

func scanEnrollments(rows pgx.Rows) ([]*domain.SequenceEnrollment, error) {
	var list []*domain.SequenceEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
