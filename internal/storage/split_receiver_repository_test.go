package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505"}
	assert.True(t, IsUniqueViolation(pgErr))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert failed: %w", pgErr)))

	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("not a pg error")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestReplaceReceiversForRejectsDuplicateEdge(t *testing.T) {
	db := testDB(t)
	ctx := testContext(t)

	sender := "duplicate-edge-sender"
	t.Cleanup(func() {
		_, _ = db.Pool().Exec(ctx, `DELETE FROM split_receivers WHERE sender_account_id = $1`, sender)
	})

	edge := models.SplitReceiver{
		SenderAccountID:     sender,
		SenderAccountType:   "dripList",
		ReceiverAccountID:   "duplicate-edge-receiver",
		ReceiverAccountType: "address",
		RelationshipType:    models.RelReceiver,
		Weight:              500000,
		BlockTimestamp:      time.Now().UTC(),
	}

	// A caller that skipped canonicalization trips the unique edge key.
	repo := NewSplitReceiverRepository()
	err := repo.ReplaceReceiversFor(ctx, db.Pool(), sender, []models.SplitReceiver{edge, edge})
	require.Error(t, err)
	assert.True(t, indexererr.IsInvariant(err))

	// The same edge set without the duplicate is accepted.
	err = repo.ReplaceReceiversFor(ctx, db.Pool(), sender, []models.SplitReceiver{edge})
	require.NoError(t, err)

	edges, err := repo.ReceiversFor(ctx, db.Pool(), sender)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}
