package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

// EventOrder is the (blockNumber, logIndex) position of an event in the
// chain's total order.
type EventOrder struct {
	BlockNumber uint64
	LogIndex    uint32
}

// Compare orders two positions lexicographically: -1 if a precedes b,
// 0 if equal, 1 if a follows b.
func (a EventOrder) Compare(b EventOrder) int {
	switch {
	case a.BlockNumber < b.BlockNumber:
		return -1
	case a.BlockNumber > b.BlockNumber:
		return 1
	case a.LogIndex < b.LogIndex:
		return -1
	case a.LogIndex > b.LogIndex:
		return 1
	default:
		return 0
	}
}

// EventRepository persists the append-only, deduplicated event log
type EventRepository struct{}

// NewEventRepository creates a new event repository
func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

// Insert persists a raw event row before any business logic runs, so the
// stream can always be replayed from durable storage. Returns false
// without error when the (transaction_hash, log_index) key already
// exists: a redelivery is a no-op, not a failure.
func (r *EventRepository) Insert(ctx context.Context, q Querier, row *models.EventRow) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO events
			(transaction_hash, log_index, signature, account_id,
			 block_number, block_timestamp, raw_event, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (transaction_hash, log_index) DO NOTHING`,
		row.TransactionHash,
		row.LogIndex,
		row.Signature,
		row.AccountID,
		row.BlockNumber,
		row.BlockTimestamp,
		row.RawEvent,
	)
	if err != nil {
		return false, indexererr.Transport("DB_INSERT_EVENT", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get retrieves an event by its idempotency key
func (r *EventRepository) Get(ctx context.Context, q Querier, txHash string, logIndex uint32) (*models.EventRow, error) {
	var row models.EventRow
	err := q.QueryRow(ctx, `
		SELECT transaction_hash, log_index, signature, account_id,
		       block_number, block_timestamp, raw_event, created_at
		FROM events
		WHERE transaction_hash = $1 AND log_index = $2`,
		txHash, logIndex,
	).Scan(
		&row.TransactionHash,
		&row.LogIndex,
		&row.Signature,
		&row.AccountID,
		&row.BlockNumber,
		&row.BlockTimestamp,
		&row.RawEvent,
		&row.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, indexererr.Transport("DB_GET_EVENT", err)
	}
	return &row, nil
}

// IsLatestEvent reports whether candidate is the most recent event known
// for (accountID, signature). The current-latest row is read under FOR
// UPDATE so concurrent handlers for the same account serialize here; the
// comparison must run inside the same transaction as the subsequent state
// mutation. This guard is advisory for staleness only - an event can be
// latest in the DB and still diverge from live on-chain state.
func (r *EventRepository) IsLatestEvent(ctx context.Context, q Querier, accountID, signature string, candidate EventOrder) (bool, error) {
	var latest EventOrder
	err := q.QueryRow(ctx, `
		SELECT block_number, log_index
		FROM events
		WHERE account_id = $1 AND signature = $2
		ORDER BY block_number DESC, log_index DESC
		LIMIT 1
		FOR UPDATE`,
		accountID, signature,
	).Scan(&latest.BlockNumber, &latest.LogIndex)
	if err == pgx.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, indexererr.Transport("DB_LATEST_EVENT", err)
	}
	// Candidate is latest iff no stored event is strictly newer. The
	// candidate's own row is already stored, so equality still counts.
	return latest.Compare(candidate) <= 0, nil
}
