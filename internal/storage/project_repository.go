package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

// ProjectRepository handles project projection persistence
type ProjectRepository struct{}

// NewProjectRepository creates a new project repository
func NewProjectRepository() *ProjectRepository {
	return &ProjectRepository{}
}

const projectColumns = `account_id, forge, name, verification_status,
	owner_address, owner_account_id, color, emoji, avatar_cid,
	is_valid, is_visible, last_processed_ipfs_hash, last_processed_version,
	created_at, updated_at`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.AccountID,
		&p.Forge,
		&p.Name,
		&p.VerificationStatus,
		&p.OwnerAddress,
		&p.OwnerAccountID,
		&p.Color,
		&p.Emoji,
		&p.AvatarCID,
		&p.IsValid,
		&p.IsVisible,
		&p.LastProcessedIpfsHash,
		&p.LastProcessedVersion,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, indexererr.Transport("DB_SCAN_PROJECT", err)
	}
	return &p, nil
}

// FindOrCreateForUpdate returns the project row locked for update,
// creating an unclaimed placeholder on first reference. Must run inside
// the caller's transaction.
func (r *ProjectRepository) FindOrCreateForUpdate(ctx context.Context, q Querier, accountID string) (*models.Project, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO projects (account_id, verification_status, is_valid, is_visible, created_at, updated_at)
		VALUES ($1, $2, false, true, now(), now())
		ON CONFLICT (account_id) DO NOTHING`,
		accountID, models.StatusUnclaimed,
	)
	if err != nil {
		return nil, indexererr.Transport("DB_CREATE_PROJECT", err)
	}
	return scanProject(q.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE account_id = $1 FOR UPDATE`,
		accountID,
	))
}

// Get retrieves a project without locking
func (r *ProjectRepository) Get(ctx context.Context, q Querier, accountID string) (*models.Project, error) {
	return scanProject(q.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE account_id = $1`,
		accountID,
	))
}

// Update persists all mutable fields of the project row
func (r *ProjectRepository) Update(ctx context.Context, q Querier, p *models.Project) error {
	_, err := q.Exec(ctx, `
		UPDATE projects SET
			forge = $2,
			name = $3,
			verification_status = $4,
			owner_address = $5,
			owner_account_id = $6,
			color = $7,
			emoji = $8,
			avatar_cid = $9,
			is_valid = $10,
			is_visible = $11,
			last_processed_ipfs_hash = $12,
			last_processed_version = $13,
			updated_at = now()
		WHERE account_id = $1`,
		p.AccountID,
		p.Forge,
		p.Name,
		p.VerificationStatus,
		p.OwnerAddress,
		p.OwnerAccountID,
		p.Color,
		p.Emoji,
		p.AvatarCID,
		p.IsValid,
		p.IsVisible,
		p.LastProcessedIpfsHash,
		p.LastProcessedVersion,
	)
	if err != nil {
		return indexererr.Transport("DB_UPDATE_PROJECT", err)
	}
	return nil
}
