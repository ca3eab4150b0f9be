package events

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/job"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/models"
	"github.com/splits-indexer/internal/service"
	"github.com/splits-indexer/internal/storage"
)

// Ingestor persists decoded events to the append-only log and enqueues a
// reconciliation job for each one. Redelivered events hit the idempotency
// key and are dropped without a job.
type Ingestor struct {
	db     service.TxRunner
	events *storage.EventRepository
	queue  *job.Queue
}

// NewIngestor creates an ingestor
func NewIngestor(db service.TxRunner, queue *job.Queue) *Ingestor {
	return &Ingestor{
		db:     db,
		events: storage.NewEventRepository(),
		queue:  queue,
	}
}

// Ingest records one decoded event and schedules its processing. The row
// insert and the enqueue share a transaction so a failed enqueue leaves no
// orphaned row behind.
func (i *Ingestor) Ingest(ctx context.Context, ev *Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return indexererr.Invariant("EVENT_MARSHAL", "failed to marshal event: %v", err)
	}

	return i.db.InTx(ctx, func(tx pgx.Tx) error {
		inserted, err := i.events.Insert(ctx, tx, &models.EventRow{
			TransactionHash: ev.TransactionHash,
			LogIndex:        ev.LogIndex,
			Signature:       ev.Signature,
			AccountID:       ev.AccountID,
			BlockNumber:     ev.BlockNumber,
			BlockTimestamp:  ev.BlockTimestamp,
			RawEvent:        raw,
		})
		if err != nil {
			return err
		}
		if !inserted {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"txHash":   ev.TransactionHash,
				"logIndex": ev.LogIndex,
			}).Info("Duplicate event delivery, skipping")
			return nil
		}
		return i.queue.Enqueue(ctx, job.NewJob(
			ev.Signature,
			ev.TransactionHash,
			ev.LogIndex,
			ev.BlockNumber,
			ev.BlockTimestamp,
			ev.AccountID,
			ev.Args,
		))
	})
}
