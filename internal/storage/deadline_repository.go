package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

// DeadlineRepository handles deadline-account projection persistence
type DeadlineRepository struct{}

// NewDeadlineRepository creates a new deadline repository
func NewDeadlineRepository() *DeadlineRepository {
	return &DeadlineRepository{}
}

const deadlineColumns = `account_id, receiver_account_id, project_account_id,
	refund_account_id, claim_deadline, is_visible, created_at, updated_at`

func scanDeadline(row pgx.Row) (*models.Deadline, error) {
	var d models.Deadline
	err := row.Scan(
		&d.AccountID,
		&d.ReceiverAccountID,
		&d.ProjectAccountID,
		&d.RefundAccountID,
		&d.ClaimDeadline,
		&d.IsVisible,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, indexererr.Transport("DB_SCAN_DEADLINE", err)
	}
	return &d, nil
}

// Upsert creates or refreshes a deadline row. Deadline accounts are
// created whole from their on-chain creation event.
func (r *DeadlineRepository) Upsert(ctx context.Context, q Querier, d *models.Deadline) error {
	_, err := q.Exec(ctx, `
		INSERT INTO deadlines
			(account_id, receiver_account_id, project_account_id,
			 refund_account_id, claim_deadline, is_visible, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (account_id) DO UPDATE SET
			receiver_account_id = EXCLUDED.receiver_account_id,
			project_account_id = EXCLUDED.project_account_id,
			refund_account_id = EXCLUDED.refund_account_id,
			claim_deadline = EXCLUDED.claim_deadline,
			is_visible = EXCLUDED.is_visible,
			updated_at = now()`,
		d.AccountID,
		d.ReceiverAccountID,
		d.ProjectAccountID,
		d.RefundAccountID,
		d.ClaimDeadline,
		d.IsVisible,
	)
	if err != nil {
		return indexererr.Transport("DB_UPSERT_DEADLINE", err)
	}
	return nil
}

// Get retrieves a deadline account
func (r *DeadlineRepository) Get(ctx context.Context, q Querier, accountID string) (*models.Deadline, error) {
	return scanDeadline(q.QueryRow(ctx,
		`SELECT `+deadlineColumns+` FROM deadlines WHERE account_id = $1`,
		accountID,
	))
}

// Exists reports whether the deadline account has been seen on-chain
func (r *DeadlineRepository) Exists(ctx context.Context, q Querier, accountID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM deadlines WHERE account_id = $1)`,
		accountID,
	).Scan(&exists)
	if err != nil {
		return false, indexererr.Transport("DB_DEADLINE_EXISTS", err)
	}
	return exists, nil
}
