package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
	"github.com/splits-indexer/internal/storage"
)

// ProcessSplitsSet reconciles the stored edge set of a sender against the
// receiver-set hash announced on-chain. On a match the sender is marked
// valid; on a mismatch it is marked invalid and the job is retried, since
// the metadata event carrying the new receiver set may not have been
// processed yet.
func (e *Engine) ProcessSplitsSet(ctx context.Context, account accountid.AccountID, signature string, receiversHash common.Hash, order storage.EventOrder) error {
	var matched, superseded bool
	err := e.db.InTx(ctx, func(tx pgx.Tx) error {
		latest, err := e.guardLatest(ctx, tx, account, signature, order)
		if err != nil {
			return err
		}
		if !latest {
			superseded = true
			return nil
		}

		edges, err := e.receivers.ReceiversFor(ctx, tx, account.String())
		if err != nil {
			return err
		}
		localHash, err := hashOfEdges(edges)
		if err != nil {
			return err
		}
		matched = localHash == receiversHash
		return e.setValidity(ctx, tx, account, matched)
	})
	if err != nil {
		return err
	}
	if superseded {
		return nil
	}
	if !matched {
		return indexererr.Recoverable("SPLITS_HASH_MISMATCH",
			"stored receiver set of %s does not hash to the announced %s", account.String(), receiversHash.Hex())
	}
	return nil
}

// ProcessOwnerUpdateRequested records the start of a project claim: the
// driver has been asked to verify a forge source for the account.
func (e *Engine) ProcessOwnerUpdateRequested(ctx context.Context, account accountid.AccountID, signature string, forgeNum uint8, name string, order storage.EventOrder) error {
	if err := account.AssertProject(); err != nil {
		return err
	}
	forge, err := forgeFromNumber(forgeNum)
	if err != nil {
		return err
	}

	var firstSeen bool
	err = e.db.InTx(ctx, func(tx pgx.Tx) error {
		latest, err := e.guardLatest(ctx, tx, account, signature, order)
		if err != nil || !latest {
			return err
		}

		existing, err := e.projects.Get(ctx, tx, account.String())
		if err != nil {
			return err
		}
		firstSeen = existing == nil

		p, err := e.projects.FindOrCreateForUpdate(ctx, tx, account.String())
		if err != nil {
			return err
		}
		p.Forge = &forge
		p.Name = &name
		if p.VerificationStatus == models.StatusUnclaimed {
			p.VerificationStatus = models.StatusOwnerUpdateRequested
		}
		return e.projects.Update(ctx, tx, p)
	})
	if err != nil {
		return err
	}

	if firstSeen {
		e.RevalidateSenders(ctx, account)
	}
	return nil
}

// ProcessOwnerUpdated records the driver's confirmation of a project's
// owner address. If metadata was already processed the project graduates
// straight to claimed.
func (e *Engine) ProcessOwnerUpdated(ctx context.Context, account accountid.AccountID, signature string, owner common.Address, order storage.EventOrder) error {
	if err := account.AssertProject(); err != nil {
		return err
	}

	var firstSeen bool
	err := e.db.InTx(ctx, func(tx pgx.Tx) error {
		latest, err := e.guardLatest(ctx, tx, account, signature, order)
		if err != nil || !latest {
			return err
		}

		existing, err := e.projects.Get(ctx, tx, account.String())
		if err != nil {
			return err
		}
		firstSeen = existing == nil

		p, err := e.projects.FindOrCreateForUpdate(ctx, tx, account.String())
		if err != nil {
			return err
		}
		ownerHex := owner.Hex()
		ownerID := accountid.FromAddress(owner).String()
		p.OwnerAddress = &ownerHex
		p.OwnerAccountID = &ownerID
		if p.LastProcessedIpfsHash != nil {
			p.VerificationStatus = models.StatusClaimed
		} else {
			p.VerificationStatus = models.StatusOwnerUpdated
		}
		return e.projects.Update(ctx, tx, p)
	})
	if err != nil {
		return err
	}

	if firstSeen {
		e.RevalidateSenders(ctx, account)
	}
	return nil
}

// ProcessTransfer records an NFT ownership change of a drip list or an
// ecosystem main account. A mint creates the row.
func (e *Engine) ProcessTransfer(ctx context.Context, tokenID accountid.AccountID, signature string, to common.Address, order storage.EventOrder) error {
	var firstSeen bool
	err := e.db.InTx(ctx, func(tx pgx.Tx) error {
		latest, err := e.guardLatest(ctx, tx, tokenID, signature, order)
		if err != nil || !latest {
			return err
		}

		ownerHex := to.Hex()
		ownerID := accountid.FromAddress(to).String()

		switch tokenID.Driver() {
		case accountid.DriverDripList:
			existing, err := e.dripLists.Get(ctx, tx, tokenID.String())
			if err != nil {
				return err
			}
			firstSeen = existing == nil
			row, err := e.dripLists.FindOrCreateForUpdate(ctx, tx, tokenID.String())
			if err != nil {
				return err
			}
			row.OwnerAddress = &ownerHex
			row.OwnerAccountID = &ownerID
			return e.dripLists.Update(ctx, tx, row)

		case accountid.DriverEcosystem:
			existing, err := e.ecosystems.Get(ctx, tx, tokenID.String())
			if err != nil {
				return err
			}
			firstSeen = existing == nil
			row, err := e.ecosystems.FindOrCreateForUpdate(ctx, tx, tokenID.String())
			if err != nil {
				return err
			}
			row.OwnerAddress = &ownerHex
			row.OwnerAccountID = &ownerID
			return e.ecosystems.Update(ctx, tx, row)

		default:
			return indexererr.Validation("TRANSFER_BAD_DRIVER",
				"transferred token %s is a %s account, not an NFT-driver account", tokenID.String(), tokenID.Driver())
		}
	})
	if err != nil {
		return err
	}

	if firstSeen {
		e.RevalidateSenders(ctx, tokenID)
	}
	return nil
}

// ProcessDeadlineCreated materializes a time-boxed claim account. Edges
// pointing at the deadline account become resolvable once it exists, so
// their senders are revalidated afterwards.
func (e *Engine) ProcessDeadlineCreated(ctx context.Context, d *models.Deadline, signature string, order storage.EventOrder) error {
	account, err := accountid.FromDecimal(d.AccountID)
	if err != nil {
		return err
	}
	if err := account.AssertDeadline(); err != nil {
		return err
	}
	project, err := accountid.FromDecimal(d.ProjectAccountID)
	if err != nil {
		return err
	}
	if err := project.AssertProject(); err != nil {
		return err
	}
	if _, err := accountid.FromDecimal(d.ReceiverAccountID); err != nil {
		return err
	}
	if _, err := accountid.FromDecimal(d.RefundAccountID); err != nil {
		return err
	}

	var firstSeen bool
	err = e.db.InTx(ctx, func(tx pgx.Tx) error {
		latest, err := e.guardLatest(ctx, tx, account, signature, order)
		if err != nil || !latest {
			return err
		}
		exists, err := e.deadlines.Exists(ctx, tx, d.AccountID)
		if err != nil {
			return err
		}
		firstSeen = !exists
		return e.deadlines.Upsert(ctx, tx, d)
	})
	if err != nil {
		return err
	}

	if firstSeen {
		e.RevalidateSenders(ctx, account)
	}
	return nil
}

// setValidity flips the is_valid flag of the entity row behind an account
func (e *Engine) setValidity(ctx context.Context, tx pgx.Tx, account accountid.AccountID, valid bool) error {
	switch account.Driver() {
	case accountid.DriverProject:
		row, err := e.projects.FindOrCreateForUpdate(ctx, tx, account.String())
		if err != nil {
			return err
		}
		row.IsValid = valid
		return e.projects.Update(ctx, tx, row)
	case accountid.DriverDripList:
		row, err := e.dripLists.FindOrCreateForUpdate(ctx, tx, account.String())
		if err != nil {
			return err
		}
		row.IsValid = valid
		return e.dripLists.Update(ctx, tx, row)
	case accountid.DriverEcosystem:
		row, err := e.ecosystems.FindOrCreateForUpdate(ctx, tx, account.String())
		if err != nil {
			return err
		}
		row.IsValid = valid
		return e.ecosystems.Update(ctx, tx, row)
	case accountid.DriverSubList:
		if _, err := e.subLists.FindOrCreateForUpdate(ctx, tx, account.String()); err != nil {
			return err
		}
		// Lineage may be unknown until the sub-list's metadata arrives, so
		// the flag is written directly instead of through the validating
		// full-row update.
		_, err := tx.Exec(ctx,
			`UPDATE sub_lists SET is_valid = $2, updated_at = now() WHERE account_id = $1`,
			account.String(), valid,
		)
		if err != nil {
			return indexererr.Transport("DB_UPDATE_SUB_LIST", err)
		}
		return nil
	default:
		return indexererr.Validation("SPLITS_BAD_SENDER",
			"account %s with driver %s cannot hold a splits configuration", account.String(), account.Driver())
	}
}

func forgeFromNumber(n uint8) (models.Forge, error) {
	switch n {
	case 0:
		return models.ForgeGitHub, nil
	case 1:
		return models.ForgeGitLab, nil
	default:
		return "", indexererr.Validation("UNKNOWN_FORGE", "unsupported forge number %d", n)
	}
}
