package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

type PostgresSequenceRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSequenceRepository(pool *pgxpool.Pool) *PostgresSequenceRepository {
	return &PostgresSequenceRepository{pool: pool}
}

func (r *PostgresSequenceRepository) CreateSequence(ctx context.Context, seq *domain.Sequence) error {
	steps, err := json.Marshal(seq.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO sequences
			(id, workspace_id, name, trigger_type, active, stop_on_reply, stop_on_booking, steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		seq.ID, seq.WorkspaceID, seq.Name, seq.TriggerType, seq.Active,
		seq.StopOnReply, seq.StopOnBooking, steps)
	return err
}

func (r *PostgresSequenceRepository) GetSequence(ctx context.Context, workspaceID, id string) (*domain.Sequence, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, name, trigger_type, active, stop_on_reply, stop_on_booking,
			steps, created_at, updated_at
		FROM sequences
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID)

	seq, err := scanSequence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return seq, err
}

func (r *PostgresSequenceRepository) UpdateSequence(ctx context.Context, seq *domain.Sequence) error {
	steps, err := json.Marshal(seq.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequences
		SET name = $3, trigger_type = $4, active = $5, stop_on_reply = $6,
		    stop_on_booking = $7, steps = $8, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2`,
		seq.ID, seq.WorkspaceID, seq.Name, seq.TriggerType, seq.Active,
		seq.StopOnReply, seq.StopOnBooking, steps)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSequenceNotFound
	}
	return nil
}

func (r *PostgresSequenceRepository) SetActive(ctx context.Context, workspaceID, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sequences
		SET active = $3, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSequenceNotFound
	}
	return nil
}

func (r *PostgresSequenceRepository) ListSequences(ctx context.Context, workspaceID string) ([]*domain.Sequence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, workspace_id, name, trigger_type, active, stop_on_reply, stop_on_booking,
			steps, created_at, updated_at
		FROM sequences
		WHERE workspace_id = $1
		ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seqs []*domain.Sequence
	for rows.Next() {
		seq, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}

func scanSequence(row pgx.Row) (*domain.Sequence, error) {
	seq := &domain.Sequence{}
	var trigger string
	var steps []byte
	err := row.Scan(
		&seq.ID, &seq.WorkspaceID, &seq.Name, &trigger, &seq.Active,
		&seq.StopOnReply, &seq.StopOnBooking, &steps,
		&seq.CreatedAt, &seq.UpdatedAt)
	if err != nil {
		return nil, err
	}
	seq.TriggerType = domain.TriggerType(trigger)
	if err := json.Unmarshal(steps, &seq.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	return seq, nil
}
