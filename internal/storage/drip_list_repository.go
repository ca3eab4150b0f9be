package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

// DripListRepository handles drip-list projection persistence
type DripListRepository struct{}

// NewDripListRepository creates a new drip-list repository
func NewDripListRepository() *DripListRepository {
	return &DripListRepository{}
}

const dripListColumns = `account_id, name, description, owner_address,
	owner_account_id, is_valid, is_visible, last_processed_ipfs_hash,
	last_processed_version, created_at, updated_at`

func scanDripList(row pgx.Row) (*models.DripList, error) {
	var d models.DripList
	err := row.Scan(
		&d.AccountID,
		&d.Name,
		&d.Description,
		&d.OwnerAddress,
		&d.OwnerAccountID,
		&d.IsValid,
		&d.IsVisible,
		&d.LastProcessedIpfsHash,
		&d.LastProcessedVersion,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, indexererr.Transport("DB_SCAN_DRIP_LIST", err)
	}
	return &d, nil
}

// FindOrCreateForUpdate returns the drip-list row locked for update,
// creating it on first reference
func (r *DripListRepository) FindOrCreateForUpdate(ctx context.Context, q Querier, accountID string) (*models.DripList, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO drip_lists (account_id, is_valid, is_visible, created_at, updated_at)
		VALUES ($1, false, true, now(), now())
		ON CONFLICT (account_id) DO NOTHING`,
		accountID,
	)
	if err != nil {
		return nil, indexererr.Transport("DB_CREATE_DRIP_LIST", err)
	}
	return scanDripList(q.QueryRow(ctx,
		`SELECT `+dripListColumns+` FROM drip_lists WHERE account_id = $1 FOR UPDATE`,
		accountID,
	))
}

// Get retrieves a drip list without locking
func (r *DripListRepository) Get(ctx context.Context, q Querier, accountID string) (*models.DripList, error) {
	return scanDripList(q.QueryRow(ctx,
		`SELECT `+dripListColumns+` FROM drip_lists WHERE account_id = $1`,
		accountID,
	))
}

// Update persists all mutable fields of the drip-list row
func (r *DripListRepository) Update(ctx context.Context, q Querier, d *models.DripList) error {
	_, err := q.Exec(ctx, `
		UPDATE drip_lists SET
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
		d.AccountID,
		d.Name,
		d.Description,
		d.OwnerAddress,
		d.OwnerAccountID,
		d.IsValid,
		d.IsVisible,
		d.LastProcessedIpfsHash,
		d.LastProcessedVersion,
	)
	if err != nil {
		return indexererr.Transport("DB_UPDATE_DRIP_LIST", err)
	}
	return nil
}
