package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

// EcosystemRepository handles ecosystem-main-account projection persistence
type EcosystemRepository struct{}

// NewEcosystemRepository creates a new ecosystem repository
func NewEcosystemRepository() *EcosystemRepository {
	return &EcosystemRepository{}
}

const ecosystemColumns = `account_id, name, description, owner_address,
	owner_account_id, is_valid, is_visible, last_processed_ipfs_hash,
	last_processed_version, created_at, updated_at`

func scanEcosystem(row pgx.Row) (*models.EcosystemMainAccount, error) {
	var e models.EcosystemMainAccount
	err := row.Scan(
		&e.AccountID,
		&e.Name,
		&e.Description,
		&e.OwnerAddress,
		&e.OwnerAccountID,
		&e.IsValid,
		&e.IsVisible,
		&e.LastProcessedIpfsHash,
		&e.LastProcessedVersion,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, indexererr.Transport("DB_SCAN_ECOSYSTEM", err)
	}
	return &e, nil
}

// FindOrCreateForUpdate returns the ecosystem row locked for update,
// creating it on first reference
func (r *EcosystemRepository) FindOrCreateForUpdate(ctx context.Context, q Querier, accountID string) (*models.EcosystemMainAccount, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO ecosystem_main_accounts (account_id, is_valid, is_visible, created_at, updated_at)
		VALUES ($1, false, true, now(), now())
		ON CONFLICT (account_id) DO NOTHING`,
		accountID,
	)
	if err != nil {
		return nil, indexererr.Transport("DB_CREATE_ECOSYSTEM", err)
	}
	return scanEcosystem(q.QueryRow(ctx,
		`SELECT `+ecosystemColumns+` FROM ecosystem_main_accounts WHERE account_id = $1 FOR UPDATE`,
		accountID,
	))
}

// Get retrieves an ecosystem main account without locking
func (r *EcosystemRepository) Get(ctx context.Context, q Querier, accountID string) (*models.EcosystemMainAccount, error) {
	return scanEcosystem(q.QueryRow(ctx,
		`SELECT `+ecosystemColumns+` FROM ecosystem_main_accounts WHERE account_id = $1`,
		accountID,
	))
}

// Update persists all mutable fields of the ecosystem row
func (r *EcosystemRepository) Update(ctx context.Context, q Querier, e *models.EcosystemMainAccount) error {
	_, err := q.Exec(ctx, `
		UPDATE ecosystem_main_accounts SET
			name = $2,
			description = $3,
			owner_address = $4,
			owner_account_id = $5,
			is_valid = $6,
			is_visible = $7,
			last_processed_ipfs_hash = $8,
			last_processed_version = $9,
			updated_at = now()
		WHERE account_id = $1`,
		e.AccountID,
		e.Name,
		e.Description,
		e.OwnerAddress,
		e.OwnerAccountID,
		e.IsValid,
		e.IsVisible,
		e.LastProcessedIpfsHash,
		e.LastProcessedVersion,
	)
	if err != nil {
		return indexererr.Transport("DB_UPDATE_ECOSYSTEM", err)
	}
	return nil
}
