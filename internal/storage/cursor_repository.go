package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/indexererr"
)

// CursorRepository persists the ingest watcher's last fully processed
// block so restarts resume instead of rescanning from genesis.
type CursorRepository struct{}

// NewCursorRepository creates a new cursor repository
func NewCursorRepository() *CursorRepository {
	return &CursorRepository{}
}

// Get returns the last processed block, or ok=false before the first sync
func (r *CursorRepository) Get(ctx context.Context, q Querier) (uint64, bool, error) {
	var lastBlock int64
	err := q.QueryRow(ctx, `SELECT last_block FROM ingest_cursor WHERE id = 1`).Scan(&lastBlock)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, indexererr.Transport("DB_GET_CURSOR", err)
	}
	return uint64(lastBlock), true, nil
}

// Set records the last processed block
func (r *CursorRepository) Set(ctx context.Context, q Querier, block uint64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ingest_cursor (id, last_block, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET last_block = EXCLUDED.last_block, updated_at = now()`,
		int64(block),
	)
	if err != nil {
		return indexererr.Transport("DB_SET_CURSOR", err)
	}
	return nil
}
