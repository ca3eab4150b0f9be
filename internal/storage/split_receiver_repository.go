package storage

import (
	"context"

	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

// SplitReceiverRepository handles the split-receiver edge table
type SplitReceiverRepository struct{}

// NewSplitReceiverRepository creates a new split-receiver repository
func NewSplitReceiverRepository() *SplitReceiverRepository {
	return &SplitReceiverRepository{}
}

// ReplaceReceiversFor atomically swaps the full outgoing edge set of a
// sender: delete-then-insert inside the caller's transaction, never an
// incremental diff, so a reader can never observe a mix of old and new
// edges.
func (r *SplitReceiverRepository) ReplaceReceiversFor(ctx context.Context, q Querier, senderAccountID string, receivers []models.SplitReceiver) error {
	_, err := q.Exec(ctx,
		`DELETE FROM split_receivers WHERE sender_account_id = $1`,
		senderAccountID,
	)
	if err != nil {
		return indexererr.Transport("DB_DELETE_RECEIVERS", err)
	}
	for _, rec := range receivers {
		_, err := q.Exec(ctx, `
			INSERT INTO split_receivers
				(sender_account_id, sender_account_type,
				 receiver_account_id, receiver_account_type,
				 relationship_type, weight, block_timestamp, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
			senderAccountID,
			rec.SenderAccountType,
			rec.ReceiverAccountID,
			rec.ReceiverAccountType,
			rec.RelationshipType,
			rec.Weight,
			rec.BlockTimestamp,
		)
		if err != nil {
			// The edge table is unique on the canonical edge key; hitting
			// the constraint here means the caller skipped canonicalization.
			if IsUniqueViolation(err) {
				return indexererr.Invariant("DUPLICATE_EDGE",
					"duplicate edge %s -> %s (%s, weight %d)",
					senderAccountID, rec.ReceiverAccountID, rec.RelationshipType, rec.Weight)
			}
			return indexererr.Transport("DB_INSERT_RECEIVER", err)
		}
	}
	return nil
}

// ReceiversFor returns the stored outgoing edges of a sender
func (r *SplitReceiverRepository) ReceiversFor(ctx context.Context, q Querier, senderAccountID string) ([]models.SplitReceiver, error) {
	rows, err := q.Query(ctx, `
		SELECT id, sender_account_id, sender_account_type,
		       receiver_account_id, receiver_account_type,
		       relationship_type, weight, block_timestamp, created_at
		FROM split_receivers
		WHERE sender_account_id = $1
		ORDER BY receiver_account_id, weight`,
		senderAccountID,
	)
	if err != nil {
		return nil, indexererr.Transport("DB_LIST_RECEIVERS", err)
	}
	defer rows.Close()

	var out []models.SplitReceiver
	for rows.Next() {
		var rec models.SplitReceiver
		if err := rows.Scan(
			&rec.ID,
			&rec.SenderAccountID,
			&rec.SenderAccountType,
			&rec.ReceiverAccountID,
			&rec.ReceiverAccountType,
			&rec.RelationshipType,
			&rec.Weight,
			&rec.BlockTimestamp,
			&rec.CreatedAt,
		); err != nil {
			return nil, indexererr.Transport("DB_SCAN_RECEIVER", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, indexererr.Transport("DB_LIST_RECEIVERS", err)
	}
	return out, nil
}

// SendersPointingAt returns every distinct sender with an edge into the
// given account. The cascade revalidates each of these after the account
// becomes resolvable.
func (r *SplitReceiverRepository) SendersPointingAt(ctx context.Context, q Querier, receiverAccountID string) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT DISTINCT sender_account_id
		FROM split_receivers
		WHERE receiver_account_id = $1
		ORDER BY sender_account_id`,
		receiverAccountID,
	)
	if err != nil {
		return nil, indexererr.Transport("DB_SENDERS_POINTING_AT", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sender string
		if err := rows.Scan(&sender); err != nil {
			return nil, indexererr.Transport("DB_SCAN_SENDER", err)
		}
		out = append(out, sender)
	}
	if err := rows.Err(); err != nil {
		return nil, indexererr.Transport("DB_SENDERS_POINTING_AT", err)
	}
	return out, nil
}
