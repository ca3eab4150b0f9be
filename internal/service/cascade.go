package service

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/models"
)

// RevalidateSenders re-checks every sender holding an edge into the given
// account after that account becomes resolvable. Senders are processed
// sequentially, each in its own transaction; a failure for one sender is
// logged and does not stop the others.
func (e *Engine) RevalidateSenders(ctx context.Context, account accountid.AccountID) {
	logger := logging.FromContext(ctx).WithField("accountId", account.String())

	var senders []string
	err := e.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		senders, err = e.receivers.SendersPointingAt(ctx, tx, account.String())
		return err
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to list senders for revalidation")
		return
	}
	if len(senders) == 0 {
		return
	}
	logger.WithField("senders", len(senders)).Info("Revalidating senders pointing at newly seen account")

	for _, senderID := range senders {
		if err := e.revalidateSender(ctx, senderID); err != nil {
			logger.WithError(err).WithField("senderId", senderID).Warn("Sender revalidation failed")
		}
	}
}

// revalidateSender recomputes one sender's receiver-set hash from its
// stored edges and reconciles the validity flag against the contract.
func (e *Engine) revalidateSender(ctx context.Context, senderID string) error {
	sender, err := accountid.FromDecimal(senderID)
	if err != nil {
		return err
	}

	var edges []models.SplitReceiver
	err = e.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		edges, err = e.receivers.ReceiversFor(ctx, tx, senderID)
		return err
	})
	if err != nil {
		return err
	}

	localHash, err := hashOfEdges(edges)
	if err != nil {
		return err
	}
	matched, err := e.checkOnChainHash(ctx, sender, localHash)
	if err != nil {
		return err
	}
	if err := e.checkSenderOwnership(ctx, sender); err != nil {
		return err
	}

	return e.db.InTx(ctx, func(tx pgx.Tx) error {
		return e.setValidity(ctx, tx, sender, matched)
	})
}

// checkSenderOwnership compares a sender's stored owner against the live
// owner before its validity flag is touched. Sub-lists carry no owner of
// their own and are skipped.
func (e *Engine) checkSenderOwnership(ctx context.Context, sender accountid.AccountID) error {
	var stored *string
	err := e.db.InTx(ctx, func(tx pgx.Tx) error {
		switch sender.Driver() {
		case accountid.DriverProject:
			row, err := e.projects.Get(ctx, tx, sender.String())
			if err != nil || row == nil {
				return err
			}
			stored = row.OwnerAddress
		case accountid.DriverDripList:
			row, err := e.dripLists.Get(ctx, tx, sender.String())
			if err != nil || row == nil {
				return err
			}
			stored = row.OwnerAddress
		case accountid.DriverEcosystem:
			row, err := e.ecosystems.Get(ctx, tx, sender.String())
			if err != nil || row == nil {
				return err
			}
			stored = row.OwnerAddress
		}
		return nil
	})
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}

	liveOwner, err := e.contract.OwnerOf(ctx, sender)
	if err != nil {
		return err
	}
	if !strings.EqualFold(*stored, liveOwner.Hex()) {
		return indexererr.Recoverable("OWNER_MISMATCH",
			"stored owner %s of %s disagrees with live owner %s", *stored, sender.String(), liveOwner.Hex())
	}
	return nil
}
