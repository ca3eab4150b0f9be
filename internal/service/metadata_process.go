package service

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/metadata"
	"github.com/splits-indexer/internal/models"
	"github.com/splits-indexer/internal/storage"
)

// ProcessAccountMetadata resolves the content pointer announced by an
// AccountMetadataEmitted event, verifies the document against the contract
// and materializes it into the projection. The document fetch and all
// contract reads happen before the transaction opens; the ordering guard
// and every state mutation share one transaction.
func (e *Engine) ProcessAccountMetadata(ctx context.Context, account accountid.AccountID, signature, cid string, order storage.EventOrder, blockTime time.Time) error {
	raw, err := e.fetcher.Fetch(ctx, cid)
	if err != nil {
		return err
	}
	parsed, err := metadata.Parse(raw)
	if err != nil {
		return err
	}

	describes := parsedDescribes(parsed)
	if describes.Cmp(account) != 0 {
		return indexererr.Validation("METADATA_DESCRIBES_MISMATCH",
			"document at %s describes %s but was emitted for %s", cid, describes.String(), account.String())
	}

	switch parsed.Kind {
	case metadata.KindProject:
		return e.applyProjectMetadata(ctx, account, signature, cid, parsed, order, blockTime)
	case metadata.KindDripList, metadata.KindEcosystem:
		return e.applyListMetadata(ctx, account, signature, cid, parsed, order, blockTime)
	case metadata.KindSubList:
		return e.applySubListMetadata(ctx, account, signature, cid, parsed, order, blockTime)
	case metadata.KindLinkedIdentity:
		return e.applyLinkedIdentityMetadata(ctx, account, signature, cid, parsed, order)
	default:
		return indexererr.Invariant("UNHANDLED_KIND", "no processor for metadata kind %q", parsed.Kind)
	}
}

func parsedDescribes(p *metadata.Parsed) accountid.AccountID {
	switch p.Kind {
	case metadata.KindProject:
		return p.Project.Describes
	case metadata.KindDripList, metadata.KindEcosystem:
		return p.List.Describes
	case metadata.KindSubList:
		return p.SubList.Describes
	case metadata.KindLinkedIdentity:
		return p.LinkedIdentity.Describes
	default:
		return accountid.AccountID{}
	}
}

func (e *Engine) applyProjectMetadata(ctx context.Context, account accountid.AccountID, signature, cid string, parsed *metadata.Parsed, order storage.EventOrder, blockTime time.Time) error {
	doc := parsed.Project

	// The document's own source must derive to the account it describes,
	// otherwise the claim is forged.
	forgeNum, ok := models.ForgeNumber(doc.Source.Forge)
	if !ok {
		return indexererr.Validation("SOURCE_BAD_FORGE", "unsupported forge %q", doc.Source.Forge)
	}
	derived, err := e.contract.CalcAccountID(ctx, forgeNum, doc.Source.Name())
	if err != nil {
		return err
	}
	if derived.Cmp(account) != 0 {
		return indexererr.Validation("SOURCE_MISMATCH",
			"source %s derives to %s, not %s", doc.Source.Name(), derived.String(), account.String())
	}

	refs := doc.Receivers()
	if err := e.verifyProjectSources(ctx, refs); err != nil {
		return err
	}
	localHash, err := hashOfRefs(refs)
	if err != nil {
		return err
	}
	hashMatched, err := e.checkOnChainHash(ctx, account, localHash)
	if err != nil {
		return err
	}
	liveOwner, err := e.contract.OwnerOf(ctx, account)
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

		// Stored ownership comes from OwnerUpdated events. A disagreement
		// with the live owner means an ownership update has not been
		// processed yet.
		if p.OwnerAddress != nil && !strings.EqualFold(*p.OwnerAddress, liveOwner.Hex()) {
			return indexererr.Recoverable("OWNER_MISMATCH",
				"stored owner %s of %s disagrees with live owner %s", *p.OwnerAddress, account.String(), liveOwner.Hex())
		}
		if p.OwnerAddress == nil && liveOwner != (common.Address{}) {
			hex := liveOwner.Hex()
			id := accountid.FromAddress(liveOwner).String()
			p.OwnerAddress = &hex
			p.OwnerAccountID = &id
		}

		forge := doc.Source.Forge
		name := doc.Source.Name()
		p.Forge = &forge
		p.Name = &name
		p.Color = doc.Color
		p.Emoji = doc.Emoji
		p.AvatarCID = doc.AvatarCID
		p.IsVisible = doc.IsVisible
		p.LastProcessedIpfsHash = &cid
		p.LastProcessedVersion = &parsed.Version

		if hashMatched {
			if err := e.receivers.ReplaceReceiversFor(ctx, tx, account.String(), buildEdges(account, refs, blockTime)); err != nil {
				return err
			}
			p.IsValid = true
			if p.OwnerAddress != nil {
				p.VerificationStatus = models.StatusClaimed
			} else {
				p.VerificationStatus = models.StatusPendingOwner
			}
		} else {
			// Keep the stored edges: a SplitsSet event that has not been
			// processed yet will reconcile them.
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"accountId": account.String(),
				"localHash": localHash.Hex(),
			}).Warn("Claimed receiver set does not match on-chain hash, skipping edge replacement")
			p.IsValid = false
			if p.OwnerAddress != nil {
				p.VerificationStatus = models.StatusPendingMetadata
			} else {
				p.VerificationStatus = models.StatusPendingOwner
			}
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

func (e *Engine) applyListMetadata(ctx context.Context, account accountid.AccountID, signature, cid string, parsed *metadata.Parsed, order storage.EventOrder, blockTime time.Time) error {
	doc := parsed.List

	if err := e.verifyProjectSources(ctx, doc.Receivers); err != nil {
		return err
	}
	localHash, err := hashOfRefs(doc.Receivers)
	if err != nil {
		return err
	}
	hashMatched, err := e.checkOnChainHash(ctx, account, localHash)
	if err != nil {
		return err
	}
	liveOwner, err := e.contract.OwnerOf(ctx, account)
	if err != nil {
		return err
	}

	var firstSeen bool
	err = e.db.InTx(ctx, func(tx pgx.Tx) error {
		latest, err := e.guardLatest(ctx, tx, account, signature, order)
		if err != nil || !latest {
			return err
		}

		var (
			isValid               *bool
			ownerAddr             **string
			ownerID               **string
			update                func() error
		)
		if parsed.Kind == metadata.KindEcosystem {
			existing, err := e.ecosystems.Get(ctx, tx, account.String())
			if err != nil {
				return err
			}
			firstSeen = existing == nil
			row, err := e.ecosystems.FindOrCreateForUpdate(ctx, tx, account.String())
			if err != nil {
				return err
			}
			row.Name = &doc.Name
			row.Description = &doc.Description
			row.IsVisible = doc.IsVisible
			row.LastProcessedIpfsHash = &cid
			row.LastProcessedVersion = &parsed.Version
			isValid, ownerAddr, ownerID = &row.IsValid, &row.OwnerAddress, &row.OwnerAccountID
			update = func() error { return e.ecosystems.Update(ctx, tx, row) }
		} else {
			existing, err := e.dripLists.Get(ctx, tx, account.String())
			if err != nil {
				return err
			}
			firstSeen = existing == nil
			row, err := e.dripLists.FindOrCreateForUpdate(ctx, tx, account.String())
			if err != nil {
				return err
			}
			row.Name = &doc.Name
			row.Description = &doc.Description
			row.IsVisible = doc.IsVisible
			row.LastProcessedIpfsHash = &cid
			row.LastProcessedVersion = &parsed.Version
			isValid, ownerAddr, ownerID = &row.IsValid, &row.OwnerAddress, &row.OwnerAccountID
			update = func() error { return e.dripLists.Update(ctx, tx, row) }
		}

		// Stored ownership comes from Transfer events. A disagreement with
		// the live owner means a transfer has not been processed yet.
		if *ownerAddr != nil && !strings.EqualFold(**ownerAddr, liveOwner.Hex()) {
			return indexererr.Recoverable("OWNER_MISMATCH",
				"stored owner %s of %s disagrees with live owner %s", **ownerAddr, account.String(), liveOwner.Hex())
		}
		if *ownerAddr == nil && liveOwner != (common.Address{}) {
			hex := liveOwner.Hex()
			id := accountid.FromAddress(liveOwner).String()
			*ownerAddr = &hex
			*ownerID = &id
		}

		if hashMatched {
			if err := e.receivers.ReplaceReceiversFor(ctx, tx, account.String(), buildEdges(account, doc.Receivers, blockTime)); err != nil {
				return err
			}
			*isValid = true
		} else {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"accountId": account.String(),
				"localHash": localHash.Hex(),
			}).Warn("Claimed receiver set does not match on-chain hash, skipping edge replacement")
			*isValid = false
		}
		return update()
	})
	if err != nil {
		return err
	}

	if firstSeen {
		e.RevalidateSenders(ctx, account)
	}
	return nil
}

func (e *Engine) applySubListMetadata(ctx context.Context, account accountid.AccountID, signature, cid string, parsed *metadata.Parsed, order storage.EventOrder, blockTime time.Time) error {
	doc := parsed.SubList

	if err := e.verifyProjectSources(ctx, doc.Receivers); err != nil {
		return err
	}
	localHash, err := hashOfRefs(doc.Receivers)
	if err != nil {
		return err
	}
	hashMatched, err := e.checkOnChainHash(ctx, account, localHash)
	if err != nil {
		return err
	}

	var firstSeen bool
	err = e.db.InTx(ctx, func(tx pgx.Tx) error {
		latest, err := e.guardLatest(ctx, tx, account, signature, order)
		if err != nil || !latest {
			return err
		}

		existing, err := e.subLists.Get(ctx, tx, account.String())
		if err != nil {
			return err
		}
		firstSeen = existing == nil

		row, err := e.subLists.FindOrCreateForUpdate(ctx, tx, account.String())
		if err != nil {
			return err
		}

		row.ParentDripListID = nil
		row.ParentEcosystemID = nil
		row.ParentSubListID = nil
		parent := doc.Parent.String()
		switch doc.Parent.Driver() {
		case accountid.DriverDripList:
			row.ParentDripListID = &parent
		case accountid.DriverEcosystem:
			row.ParentEcosystemID = &parent
		case accountid.DriverSubList:
			row.ParentSubListID = &parent
		}

		row.RootDripListID = nil
		row.RootEcosystemID = nil
		root := doc.Root.String()
		switch doc.Root.Driver() {
		case accountid.DriverDripList:
			row.RootDripListID = &root
		case accountid.DriverEcosystem:
			row.RootEcosystemID = &root
		}

		row.LastProcessedIpfsHash = &cid
		row.LastProcessedVersion = &parsed.Version

		if hashMatched {
			if err := e.receivers.ReplaceReceiversFor(ctx, tx, account.String(), buildEdges(account, doc.Receivers, blockTime)); err != nil {
				return err
			}
			row.IsValid = true
		} else {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"accountId": account.String(),
				"localHash": localHash.Hex(),
			}).Warn("Claimed receiver set does not match on-chain hash, skipping edge replacement")
			row.IsValid = false
		}
		return e.subLists.Update(ctx, tx, row)
	})
	if err != nil {
		return err
	}

	if firstSeen {
		e.RevalidateSenders(ctx, account)
	}
	return nil
}

func (e *Engine) applyLinkedIdentityMetadata(ctx context.Context, account accountid.AccountID, signature, cid string, parsed *metadata.Parsed, order storage.EventOrder) error {
	doc := parsed.LinkedIdentity

	liveOwner, err := e.contract.OwnerOf(ctx, account)
	if err != nil {
		return err
	}
	if !strings.EqualFold(doc.OwnerAddress, liveOwner.Hex()) {
		return indexererr.Recoverable("OWNER_MISMATCH",
			"document claims owner %s of %s but live owner is %s", doc.OwnerAddress, account.String(), liveOwner.Hex())
	}

	var firstSeen bool
	err = e.db.InTx(ctx, func(tx pgx.Tx) error {
		latest, err := e.guardLatest(ctx, tx, account, signature, order)
		if err != nil || !latest {
			return err
		}

		existing, err := e.identities.Get(ctx, tx, account.String())
		if err != nil {
			return err
		}
		firstSeen = existing == nil

		row, err := e.identities.FindOrCreateForUpdate(ctx, tx, account.String())
		if err != nil {
			return err
		}

		ownerHex := liveOwner.Hex()
		ownerID := accountid.FromAddress(liveOwner).String()
		row.IdentityType = doc.IdentityType
		row.IdentityValue = &doc.IdentityValue
		row.OwnerAddress = &ownerHex
		row.OwnerAccountID = &ownerID
		row.IsLinked = true
		row.LastProcessedIpfsHash = &cid
		row.LastProcessedVersion = &parsed.Version
		return e.identities.Update(ctx, tx, row)
	})
	if err != nil {
		return err
	}

	if firstSeen {
		e.RevalidateSenders(ctx, account)
	}
	return nil
}
