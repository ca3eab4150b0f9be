// Package service implements the reconciliation engine. Each processor
// consumes one decoded on-chain event inside a single transaction, guards
// against stale deliveries with the stored event order, checks the claimed
// state against the contract, and materializes the splits graph projection.
package service

import (
	"context"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/adapter"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/metadata"
	"github.com/splits-indexer/internal/models"
	"github.com/splits-indexer/internal/splits"
	"github.com/splits-indexer/internal/storage"
)

// TxRunner runs a function inside one database transaction
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Engine reconciles decoded events into the splits graph projection
type Engine struct {
	db       TxRunner
	contract adapter.DripsContract
	fetcher  adapter.ContentFetcher

	events     *storage.EventRepository
	projects   *storage.ProjectRepository
	dripLists  *storage.DripListRepository
	ecosystems *storage.EcosystemRepository
	subLists   *storage.SubListRepository
	identities *storage.LinkedIdentityRepository
	deadlines  *storage.DeadlineRepository
	receivers  *storage.SplitReceiverRepository
}

// NewEngine creates a reconciliation engine
func NewEngine(db TxRunner, contract adapter.DripsContract, fetcher adapter.ContentFetcher) *Engine {
	return &Engine{
		db:         db,
		contract:   contract,
		fetcher:    fetcher,
		events:     storage.NewEventRepository(),
		projects:   storage.NewProjectRepository(),
		dripLists:  storage.NewDripListRepository(),
		ecosystems: storage.NewEcosystemRepository(),
		subLists:   storage.NewSubListRepository(),
		identities: storage.NewLinkedIdentityRepository(),
		deadlines:  storage.NewDeadlineRepository(),
		receivers:  storage.NewSplitReceiverRepository(),
	}
}

// guardLatest skips processing when a newer event for the same account and
// signature has already been recorded. Superseded events succeed as no-ops.
func (e *Engine) guardLatest(ctx context.Context, tx pgx.Tx, account accountid.AccountID, signature string, order storage.EventOrder) (bool, error) {
	latest, err := e.events.IsLatestEvent(ctx, tx, account.String(), signature, order)
	if err != nil {
		return false, err
	}
	if !latest {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"accountId":   account.String(),
			"signature":   signature,
			"blockNumber": order.BlockNumber,
			"logIndex":    order.LogIndex,
		}).Info("Skipping superseded event")
	}
	return latest, nil
}

// buildEdges converts parsed receiver refs into edge rows for a sender,
// deduplicated and ordered the way the contract canonicalizes receivers.
func buildEdges(sender accountid.AccountID, refs []metadata.ReceiverRef, blockTimestamp time.Time) []models.SplitReceiver {
	type key struct {
		id     string
		weight uint32
		rel    models.RelationshipType
	}
	seen := make(map[key]struct{}, len(refs))
	edges := make([]models.SplitReceiver, 0, len(refs))
	for _, ref := range refs {
		k := key{id: ref.AccountID.String(), weight: ref.Weight, rel: ref.Relationship}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		edges = append(edges, models.SplitReceiver{
			SenderAccountID:     sender.String(),
			SenderAccountType:   sender.Driver().String(),
			ReceiverAccountID:   ref.AccountID.String(),
			ReceiverAccountType: ref.AccountID.Driver().String(),
			RelationshipType:    ref.Relationship,
			Weight:              ref.Weight,
			BlockTimestamp:      blockTimestamp,
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		a := accountid.MustFromDecimal(edges[i].ReceiverAccountID)
		b := accountid.MustFromDecimal(edges[j].ReceiverAccountID)
		if c := a.Cmp(b); c != 0 {
			return c < 0
		}
		return edges[i].Weight < edges[j].Weight
	})
	return edges
}

// hashOfRefs computes the contract-style receiver-set hash of parsed refs
func hashOfRefs(refs []metadata.ReceiverRef) (common.Hash, error) {
	rs := make([]splits.Receiver, len(refs))
	for i, ref := range refs {
		rs[i] = splits.Receiver{AccountID: ref.AccountID, Weight: ref.Weight}
	}
	return splits.HashOf(rs)
}

// hashOfEdges computes the contract-style receiver-set hash of stored edges
func hashOfEdges(edges []models.SplitReceiver) (common.Hash, error) {
	rs := make([]splits.Receiver, 0, len(edges))
	for _, edge := range edges {
		id, err := accountid.FromDecimal(edge.ReceiverAccountID)
		if err != nil {
			return common.Hash{}, indexererr.Invariant("CORRUPT_EDGE",
				"stored edge has invalid receiver account ID %q", edge.ReceiverAccountID)
		}
		rs = append(rs, splits.Receiver{AccountID: id, Weight: edge.Weight})
	}
	return splits.HashOf(rs)
}

// verifyProjectSources checks every project-driver receiver that claims a
// forge source against the contract's deterministic derivation. A mismatch
// means the document lies about a source and the whole document is
// rejected, never retried.
func (e *Engine) verifyProjectSources(ctx context.Context, refs []metadata.ReceiverRef) error {
	for _, ref := range refs {
		if ref.AccountID.Driver() != accountid.DriverProject {
			continue
		}
		if ref.Source == nil {
			return indexererr.Validation("SOURCE_MISSING",
				"project receiver %s carries no forge source", ref.AccountID.String())
		}
		forgeNum, ok := models.ForgeNumber(ref.Source.Forge)
		if !ok {
			return indexererr.Validation("SOURCE_BAD_FORGE",
				"project receiver %s claims unsupported forge %q", ref.AccountID.String(), ref.Source.Forge)
		}
		derived, err := e.contract.CalcAccountID(ctx, forgeNum, ref.Source.Name())
		if err != nil {
			return err
		}
		if derived.Cmp(ref.AccountID) != 0 {
			return indexererr.Validation("SOURCE_MISMATCH",
				"receiver %s claims source %s which derives to %s",
				ref.AccountID.String(), ref.Source.Name(), derived.String())
		}
	}
	return nil
}

// checkOnChainHash compares the local receiver-set hash against the
// contract's current splitsHash for the sender.
func (e *Engine) checkOnChainHash(ctx context.Context, sender accountid.AccountID, localHash common.Hash) (bool, error) {
	onChain, err := e.contract.SplitsHash(ctx, sender)
	if err != nil {
		return false, err
	}
	return onChain == localHash, nil
}
