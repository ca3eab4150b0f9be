package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

// LinkedIdentityRepository handles linked-identity projection persistence
type LinkedIdentityRepository struct{}

// NewLinkedIdentityRepository creates a new linked-identity repository
func NewLinkedIdentityRepository() *LinkedIdentityRepository {
	return &LinkedIdentityRepository{}
}

const linkedIdentityColumns = `account_id, identity_type, identity_value,
	owner_address, owner_account_id, is_linked, is_visible,
	last_processed_ipfs_hash, last_processed_version, created_at, updated_at`

func scanLinkedIdentity(row pgx.Row) (*models.LinkedIdentity, error) {
	var li models.LinkedIdentity
	err := row.Scan(
		&li.AccountID,
		&li.IdentityType,
		&li.IdentityValue,
		&li.OwnerAddress,
		&li.OwnerAccountID,
		&li.IsLinked,
		&li.IsVisible,
		&li.LastProcessedIpfsHash,
		&li.LastProcessedVersion,
		&li.CreatedAt,
		&li.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, indexererr.Transport("DB_SCAN_LINKED_IDENTITY", err)
	}
	return &li, nil
}

// FindOrCreateForUpdate returns the linked-identity row locked for update,
// creating it on first reference
func (r *LinkedIdentityRepository) FindOrCreateForUpdate(ctx context.Context, q Querier, accountID string) (*models.LinkedIdentity, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO linked_identities (account_id, identity_type, is_linked, is_visible, created_at, updated_at)
		VALUES ($1, $2, false, true, now(), now())
		ON CONFLICT (account_id) DO NOTHING`,
		accountID, models.IdentityOrcid,
	)
	if err != nil {
		return nil, indexererr.Transport("DB_CREATE_LINKED_IDENTITY", err)
	}
	return scanLinkedIdentity(q.QueryRow(ctx,
		`SELECT `+linkedIdentityColumns+` FROM linked_identities WHERE account_id = $1 FOR UPDATE`,
		accountID,
	))
}

// Get retrieves a linked identity without locking
func (r *LinkedIdentityRepository) Get(ctx context.Context, q Querier, accountID string) (*models.LinkedIdentity, error) {
	return scanLinkedIdentity(q.QueryRow(ctx,
		`SELECT `+linkedIdentityColumns+` FROM linked_identities WHERE account_id = $1`,
		accountID,
	))
}

// Update persists all mutable fields of the linked-identity row
func (r *LinkedIdentityRepository) Update(ctx context.Context, q Querier, li *models.LinkedIdentity) error {
	_, err := q.Exec(ctx, `
		UPDATE linked_identities SET
			identity_type = $2,
			identity_value = $3,
			owner_address = $4,
			owner_account_id = $5,
			is_linked = $6,
			is_visible = $7,
			last_processed_ipfs_hash = $8,
			last_processed_version = $9,
			updated_at = now()
		WHERE account_id = $1`,
		li.AccountID,
		li.IdentityType,
		li.IdentityValue,
		li.OwnerAddress,
		li.OwnerAccountID,
		li.IsLinked,
		li.IsVisible,
		li.LastProcessedIpfsHash,
		li.LastProcessedVersion,
	)
	if err != nil {
		return indexererr.Transport("DB_UPDATE_LINKED_IDENTITY", err)
	}
	return nil
}
