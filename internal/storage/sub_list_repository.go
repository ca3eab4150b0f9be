package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

// SubListRepository handles sub-list projection persistence
type SubListRepository struct{}

// NewSubListRepository creates a new sub-list repository
func NewSubListRepository() *SubListRepository {
	return &SubListRepository{}
}

const subListColumns = `account_id, parent_drip_list_id, parent_ecosystem_id,
	parent_sub_list_id, root_drip_list_id, root_ecosystem_id,
	is_valid, is_visible, last_processed_ipfs_hash, last_processed_version,
	created_at, updated_at`

func scanSubList(row pgx.Row) (*models.SubList, error) {
	var s models.SubList
	err := row.Scan(
		&s.AccountID,
		&s.ParentDripListID,
		&s.ParentEcosystemID,
		&s.ParentSubListID,
		&s.RootDripListID,
		&s.RootEcosystemID,
		&s.IsValid,
		&s.IsVisible,
		&s.LastProcessedIpfsHash,
		&s.LastProcessedVersion,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, indexererr.Transport("DB_SCAN_SUB_LIST", err)
	}
	return &s, nil
}

// FindOrCreateForUpdate returns the sub-list row locked for update,
// creating it on first reference
func (r *SubListRepository) FindOrCreateForUpdate(ctx context.Context, q Querier, accountID string) (*models.SubList, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO sub_lists (account_id, is_valid, is_visible, created_at, updated_at)
		VALUES ($1, false, true, now(), now())
		ON CONFLICT (account_id) DO NOTHING`,
		accountID,
	)
	if err != nil {
		return nil, indexererr.Transport("DB_CREATE_SUB_LIST", err)
	}
	return scanSubList(q.QueryRow(ctx,
		`SELECT `+subListColumns+` FROM sub_lists WHERE account_id = $1 FOR UPDATE`,
		accountID,
	))
}

// Get retrieves a sub-list without locking
func (r *SubListRepository) Get(ctx context.Context, q Querier, accountID string) (*models.SubList, error) {
	return scanSubList(q.QueryRow(ctx,
		`SELECT `+subListColumns+` FROM sub_lists WHERE account_id = $1`,
		accountID,
	))
}

// Update persists all mutable fields of the sub-list row, enforcing the
// single-lineage pointer rule first.
func (r *SubListRepository) Update(ctx context.Context, q Querier, s *models.SubList) error {
	if err := s.Validate(); err != nil {
		return indexererr.Validation("SUB_LIST_LINEAGE", "%v", err)
	}
	_, err := q.Exec(ctx, `
		UPDATE sub_lists SET
			parent_drip_list_id = $2,
			parent_ecosystem_id = $3,
			parent_sub_list_id = $4,
			root_drip_list_id = $5,
			root_ecosystem_id = $6,
			is_valid = $7,
			is_visible = $8,
			last_processed_ipfs_hash = $9,
			last_processed_version = $10,
			updated_at = now()
		WHERE account_id = $1`,
		s.AccountID,
		s.ParentDripListID,
		s.ParentEcosystemID,
		s.ParentSubListID,
		s.RootDripListID,
		s.RootEcosystemID,
		s.IsValid,
		s.IsVisible,
		s.LastProcessedIpfsHash,
		s.LastProcessedVersion,
	)
	if err != nil {
		return indexererr.Transport("DB_UPDATE_SUB_LIST", err)
	}
	return nil
}
