package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/job"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/models"
	"github.com/splits-indexer/internal/service"
	"github.com/splits-indexer/internal/storage"
)

// Dispatcher routes dequeued jobs to the reconciliation engine. Every
// handled signature is bound explicitly; a job with an unknown signature
// is rejected as unprocessable.
type Dispatcher struct {
	engine *service.Engine
	routes map[string]func(ctx context.Context, j *job.Job) error
}

// NewDispatcher creates a dispatcher over the engine
func NewDispatcher(engine *service.Engine) *Dispatcher {
	d := &Dispatcher{engine: engine}
	d.routes = map[string]func(ctx context.Context, j *job.Job) error{
		SigAccountMetadataEmitted: d.handleAccountMetadata,
		SigSplitsSet:              d.handleSplitsSet,
		SigOwnerUpdateRequested:   d.handleOwnerUpdateRequested,
		SigOwnerUpdated:           d.handleOwnerUpdated,
		SigTransfer:               d.handleTransfer,
		SigDeadlineCreated:        d.handleDeadlineCreated,
	}
	return d
}

// Handle implements job.Handler
func (d *Dispatcher) Handle(ctx context.Context, j *job.Job) error {
	route, ok := d.routes[j.Signature]
	if !ok {
		return indexererr.Validation("UNKNOWN_SIGNATURE", "no processor bound for signature %q", j.Signature)
	}
	return route(ctx, j)
}

func jobOrder(j *job.Job) storage.EventOrder {
	return storage.EventOrder{BlockNumber: j.BlockNumber, LogIndex: j.LogIndex}
}

func jobAccount(j *job.Job) (accountid.AccountID, error) {
	return accountid.FromDecimal(j.AccountID)
}

func decodeArgs(j *job.Job, v interface{}) error {
	if err := json.Unmarshal(j.Args, v); err != nil {
		return indexererr.Validation("ARGS_MALFORMED", "failed to decode %s args", j.Signature).WithCause(err)
	}
	return nil
}

// metadataKeyIPFS is the only metadata key the indexer follows
const metadataKeyIPFS = "ipfs"

func (d *Dispatcher) handleAccountMetadata(ctx context.Context, j *job.Job) error {
	var args AccountMetadataArgs
	if err := decodeArgs(j, &args); err != nil {
		return err
	}
	if args.Key != metadataKeyIPFS {
		logging.FromContext(ctx).WithField("key", args.Key).Info("Ignoring metadata under unhandled key")
		return nil
	}
	if args.Value == "" {
		return indexererr.Validation("EMPTY_METADATA_VALUE", "metadata event carries no content hash")
	}
	account, err := jobAccount(j)
	if err != nil {
		return err
	}
	return d.engine.ProcessAccountMetadata(ctx, account, j.Signature, args.Value, jobOrder(j), j.BlockTimestamp)
}

func (d *Dispatcher) handleSplitsSet(ctx context.Context, j *job.Job) error {
	var args SplitsSetArgs
	if err := decodeArgs(j, &args); err != nil {
		return err
	}
	account, err := jobAccount(j)
	if err != nil {
		return err
	}
	return d.engine.ProcessSplitsSet(ctx, account, j.Signature, common.HexToHash(args.ReceiversHash), jobOrder(j))
}

func (d *Dispatcher) handleOwnerUpdateRequested(ctx context.Context, j *job.Job) error {
	var args OwnerUpdateRequestedArgs
	if err := decodeArgs(j, &args); err != nil {
		return err
	}
	account, err := jobAccount(j)
	if err != nil {
		return err
	}
	return d.engine.ProcessOwnerUpdateRequested(ctx, account, j.Signature, args.Forge, args.Name, jobOrder(j))
}

func (d *Dispatcher) handleOwnerUpdated(ctx context.Context, j *job.Job) error {
	var args OwnerUpdatedArgs
	if err := decodeArgs(j, &args); err != nil {
		return err
	}
	account, err := jobAccount(j)
	if err != nil {
		return err
	}
	return d.engine.ProcessOwnerUpdated(ctx, account, j.Signature, common.HexToAddress(args.Owner), jobOrder(j))
}

func (d *Dispatcher) handleTransfer(ctx context.Context, j *job.Job) error {
	var args TransferArgs
	if err := decodeArgs(j, &args); err != nil {
		return err
	}
	tokenID, err := accountid.FromDecimal(args.TokenID)
	if err != nil {
		return err
	}
	return d.engine.ProcessTransfer(ctx, tokenID, j.Signature, common.HexToAddress(args.To), jobOrder(j))
}

func (d *Dispatcher) handleDeadlineCreated(ctx context.Context, j *job.Job) error {
	var args DeadlineCreatedArgs
	if err := decodeArgs(j, &args); err != nil {
		return err
	}
	deadline := &models.Deadline{
		AccountID:         j.AccountID,
		ReceiverAccountID: args.ReceiverAccountID,
		ProjectAccountID:  args.ProjectAccountID,
		RefundAccountID:   args.RefundAccountID,
		ClaimDeadline:     time.Unix(args.ClaimDeadline, 0).UTC(),
		IsVisible:         true,
	}
	return d.engine.ProcessDeadlineCreated(ctx, deadline, j.Signature, jobOrder(j))
}
