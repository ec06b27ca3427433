package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

// PostgresCRMRepository exposes the read-only CRM projections the
// engine needs. Writes to these tables belong to the CRM service.
type PostgresCRMRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCRMRepository(pool *pgxpool.Pool) *PostgresCRMRepository {
	return &PostgresCRMRepository{pool: pool}
}

func (r *PostgresCRMRepository) GetCustomer(ctx context.Context, workspaceID, customerID string) (*domain.Customer, error) {
	c := &domain.Customer{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, name, first_name, phone, email, opted_out
		FROM customers
		WHERE id = $1 AND workspace_id = $2`, customerID, workspaceID).
		Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.FirstName, &c.Phone, &c.Email, &c.OptedOut)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresCRMRepository) GetCRMJob(ctx context.Context, workspaceID, crmJobID string) (*domain.CRMJob, error) {
	j := &domain.CRMJob{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, customer_id, title, status, scheduled_at
		FROM crm_jobs
		WHERE id = $1 AND workspace_id = $2`, crmJobID, workspaceID).
		Scan(&j.ID, &j.WorkspaceID, &j.CustomerID, &j.Title, &j.Status, &j.ScheduledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *PostgresCRMRepository) GetWorkspace(ctx context.Context, workspaceID string) (*domain.Workspace, error) {
	w := &domain.Workspace{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, owner_email, owner_phone
		FROM workspaces
		WHERE id = $1`, workspaceID).
		Scan(&w.ID, &w.Name, &w.OwnerEmail, &w.OwnerPhone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}
