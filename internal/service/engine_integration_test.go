package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/config"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
	"github.com/splits-indexer/internal/splits"
	"github.com/splits-indexer/internal/storage"
)

// fakeContract answers contract reads from in-memory state. CalcAccountID
// mirrors the real deterministic derivation.
type fakeContract struct {
	hashes map[string]common.Hash
	owners map[string]common.Address
}

func newFakeContract() *fakeContract {
	return &fakeContract{
		hashes: make(map[string]common.Hash),
		owners: make(map[string]common.Address),
	}
}

func (f *fakeContract) SplitsHash(ctx context.Context, account accountid.AccountID) (common.Hash, error) {
	return f.hashes[account.String()], nil
}

func (f *fakeContract) OwnerOf(ctx context.Context, account accountid.AccountID) (common.Address, error) {
	return f.owners[account.String()], nil
}

func (f *fakeContract) CalcAccountID(ctx context.Context, forge uint8, name string) (accountid.AccountID, error) {
	return accountid.CalcProjectID(forge, name), nil
}

type fakeFetcher struct {
	docs map[string][]byte
}

func (f *fakeFetcher) Fetch(ctx context.Context, cid string) ([]byte, error) {
	doc, ok := f.docs[cid]
	if !ok {
		return nil, indexererr.Transport("IPFS_FETCH", fmt.Errorf("unknown cid %s", cid))
	}
	return doc, nil
}

func testEngine(t *testing.T) (*Engine, *storage.PostgresDB, *fakeContract, *fakeFetcher) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	db, err := storage.NewPostgresDB(&config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "splits_indexer_test",
		User:           "indexer",
		MaxConnections: 5,
	})
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	contract := newFakeContract()
	fetcher := &fakeFetcher{docs: make(map[string][]byte)}
	return NewEngine(db, contract, fetcher), db, contract, fetcher
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func cleanupAccount(t *testing.T, db *storage.PostgresDB, accountIDs ...string) {
	t.Helper()
	t.Cleanup(func() {
		ctx := context.Background()
		for _, id := range accountIDs {
			for _, table := range []string{"split_receivers", "projects", "drip_lists",
				"ecosystem_main_accounts", "sub_lists", "linked_identities", "deadlines"} {
				col := "account_id"
				if table == "split_receivers" {
					col = "sender_account_id"
				}
				_, _ = db.Pool().Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, col), id)
			}
			_, _ = db.Pool().Exec(ctx, `DELETE FROM split_receivers WHERE receiver_account_id = $1`, id)
			_, _ = db.Pool().Exec(ctx, `DELETE FROM events WHERE account_id = $1`, id)
		}
	})
}

func TestProjectClaimLadder(t *testing.T) {
	engine, db, contract, fetcher := testEngine(t)
	ctx := testCtx(t)

	project := accountid.CalcProjectID(0, "acme/lib")
	cleanupAccount(t, db, project.String())

	// Claim request arrives first.
	err := engine.ProcessOwnerUpdateRequested(ctx, project, "OwnerUpdateRequested", 0, "acme/lib",
		storage.EventOrder{BlockNumber: 10, LogIndex: 0})
	require.NoError(t, err)

	projects := storage.NewProjectRepository()
	p, err := projects.Get(ctx, db.Pool(), project.String())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, models.StatusOwnerUpdateRequested, p.VerificationStatus)
	require.NotNil(t, p.Name)
	assert.Equal(t, "acme/lib", *p.Name)

	// Driver confirms the owner.
	owner := common.HexToAddress("0x1234567890123456789012345678901234567890")
	err = engine.ProcessOwnerUpdated(ctx, project, "OwnerUpdated", owner,
		storage.EventOrder{BlockNumber: 11, LogIndex: 0})
	require.NoError(t, err)

	p, err = projects.Get(ctx, db.Pool(), project.String())
	require.NoError(t, err)
	assert.Equal(t, models.StatusOwnerUpdated, p.VerificationStatus)
	require.NotNil(t, p.OwnerAddress)
	assert.Equal(t, owner.Hex(), *p.OwnerAddress)

	// Metadata with a receiver set matching the on-chain hash completes
	// the claim.
	maintainer := accountid.FromAddress(owner)
	hash, err := splits.HashOf([]splits.Receiver{{AccountID: maintainer, Weight: 1000000}})
	require.NoError(t, err)
	contract.hashes[project.String()] = hash
	contract.owners[project.String()] = owner
	fetcher.docs["QmClaim"] = []byte(fmt.Sprintf(`{
		"driver": "repo", "version": "2",
		"describes": {"accountId": %q},
		"source": {"forge": "github", "ownerName": "acme", "repoName": "lib"},
		"splits": {"maintainers": [{"accountId": %q, "weight": 1000000}]}
	}`, project.String(), maintainer.String()))

	err = engine.ProcessAccountMetadata(ctx, project, "AccountMetadataEmitted", "QmClaim",
		storage.EventOrder{BlockNumber: 12, LogIndex: 0}, time.Unix(1700000000, 0).UTC())
	require.NoError(t, err)

	p, err = projects.Get(ctx, db.Pool(), project.String())
	require.NoError(t, err)
	assert.Equal(t, models.StatusClaimed, p.VerificationStatus)
	assert.True(t, p.IsValid)

	edges, err := storage.NewSplitReceiverRepository().ReceiversFor(ctx, db.Pool(), project.String())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, maintainer.String(), edges[0].ReceiverAccountID)
	assert.Equal(t, models.RelMaintainer, edges[0].RelationshipType)
}

func TestProjectMetadataOwnerMismatchIsRetried(t *testing.T) {
	engine, db, contract, fetcher := testEngine(t)
	ctx := testCtx(t)

	project := accountid.CalcProjectID(0, "acme/held")
	cleanupAccount(t, db, project.String())

	owner := common.HexToAddress("0x1234567890123456789012345678901234567890")
	err := engine.ProcessOwnerUpdated(ctx, project, "OwnerUpdated", owner,
		storage.EventOrder{BlockNumber: 11, LogIndex: 0})
	require.NoError(t, err)

	// Ownership moved on-chain but the new OwnerUpdated event has not been
	// processed yet; the receiver-set hash itself matches.
	contract.owners[project.String()] = common.HexToAddress("0x9999999999999999999999999999999999999999")
	maintainer := accountid.FromAddress(owner)
	hash, err := splits.HashOf([]splits.Receiver{{AccountID: maintainer, Weight: 1000000}})
	require.NoError(t, err)
	contract.hashes[project.String()] = hash
	fetcher.docs["QmHeld"] = []byte(fmt.Sprintf(`{
		"driver": "repo", "version": "2",
		"describes": {"accountId": %q},
		"source": {"forge": "github", "ownerName": "acme", "repoName": "held"},
		"splits": {"maintainers": [{"accountId": %q, "weight": 1000000}]}
	}`, project.String(), maintainer.String()))

	err = engine.ProcessAccountMetadata(ctx, project, "AccountMetadataEmitted", "QmHeld",
		storage.EventOrder{BlockNumber: 12, LogIndex: 0}, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, indexererr.IsRecoverable(err))

	// The transaction rolled back: no validity, no metadata, no edges.
	p, err := storage.NewProjectRepository().Get(ctx, db.Pool(), project.String())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, models.StatusOwnerUpdated, p.VerificationStatus)
	assert.False(t, p.IsValid)
	assert.Nil(t, p.LastProcessedIpfsHash)

	edges, err := storage.NewSplitReceiverRepository().ReceiversFor(ctx, db.Pool(), project.String())
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestDripListMetadataOwnerMismatchIsRetried(t *testing.T) {
	engine, db, contract, fetcher := testEngine(t)
	ctx := testCtx(t)

	list := mustID(t, accountid.DriverDripList, 81818)
	cleanupAccount(t, db, list.String())

	first := common.HexToAddress("0x1111111111111111111111111111111111111111")
	err := engine.ProcessTransfer(ctx, list, "Transfer", first,
		storage.EventOrder{BlockNumber: 1, LogIndex: 0})
	require.NoError(t, err)

	contract.owners[list.String()] = common.HexToAddress("0x2222222222222222222222222222222222222222")
	receiver := mustID(t, accountid.DriverAddress, 5)
	hash, err := splits.HashOf([]splits.Receiver{{AccountID: receiver, Weight: 1000000}})
	require.NoError(t, err)
	contract.hashes[list.String()] = hash
	fetcher.docs["QmMoved"] = []byte(fmt.Sprintf(`{
		"driver": "nft", "version": "2", "type": "dripList",
		"describes": {"accountId": %q},
		"name": "moved list",
		"projects": [{"accountId": %q, "weight": 1000000}]
	}`, list.String(), receiver.String()))

	err = engine.ProcessAccountMetadata(ctx, list, "AccountMetadataEmitted", "QmMoved",
		storage.EventOrder{BlockNumber: 2, LogIndex: 0}, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, indexererr.IsRecoverable(err))

	row, err := storage.NewDripListRepository().Get(ctx, db.Pool(), list.String())
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.False(t, row.IsValid)
	assert.Nil(t, row.LastProcessedIpfsHash)
}

func TestProjectMetadataSourceMismatchIsRejected(t *testing.T) {
	engine, db, _, fetcher := testEngine(t)
	ctx := testCtx(t)

	// Document claims a source that derives to a different account.
	project := accountid.CalcProjectID(0, "acme/other")
	cleanupAccount(t, db, project.String())

	fetcher.docs["QmForged"] = []byte(fmt.Sprintf(`{
		"driver": "repo", "version": "2",
		"describes": {"accountId": %q},
		"source": {"forge": "github", "ownerName": "acme", "repoName": "lib"}
	}`, project.String()))

	err := engine.ProcessAccountMetadata(ctx, project, "AccountMetadataEmitted", "QmForged",
		storage.EventOrder{BlockNumber: 5, LogIndex: 0}, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, indexererr.IsValidation(err))

	// Nothing was materialized.
	p, err := storage.NewProjectRepository().Get(ctx, db.Pool(), project.String())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMetadataHashMismatchSkipsEdgeReplacement(t *testing.T) {
	engine, db, contract, fetcher := testEngine(t)
	ctx := testCtx(t)

	project := accountid.CalcProjectID(1, "group/proj")
	cleanupAccount(t, db, project.String())

	receiver := mustID(t, accountid.DriverAddress, 777)
	contract.hashes[project.String()] = common.HexToHash("0x1111") // never matches
	fetcher.docs["QmStale"] = []byte(fmt.Sprintf(`{
		"driver": "repo", "version": "2",
		"describes": {"accountId": %q},
		"source": {"forge": "gitlab", "ownerName": "group", "repoName": "proj"},
		"splits": {"dependencies": [{"accountId": %q, "weight": 1000000}]}
	}`, project.String(), receiver.String()))

	err := engine.ProcessAccountMetadata(ctx, project, "AccountMetadataEmitted", "QmStale",
		storage.EventOrder{BlockNumber: 20, LogIndex: 1}, time.Now().UTC())
	require.NoError(t, err, "hash mismatch on the ingest path is not a failure")

	p, err := storage.NewProjectRepository().Get(ctx, db.Pool(), project.String())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.False(t, p.IsValid)

	edges, err := storage.NewSplitReceiverRepository().ReceiversFor(ctx, db.Pool(), project.String())
	require.NoError(t, err)
	assert.Empty(t, edges, "claimed edges must not be written on a hash mismatch")
}

func TestProcessSplitsSetMismatchIsRetried(t *testing.T) {
	engine, db, _, _ := testEngine(t)
	ctx := testCtx(t)

	list := mustID(t, accountid.DriverDripList, 31337)
	cleanupAccount(t, db, list.String())

	err := engine.ProcessSplitsSet(ctx, list, "SplitsSet", common.HexToHash("0xbeef"),
		storage.EventOrder{BlockNumber: 7, LogIndex: 2})
	require.Error(t, err)
	assert.True(t, indexererr.IsRecoverable(err))

	// The invalid flag is persisted even though the job will retry.
	row, err := storage.NewDripListRepository().Get(ctx, db.Pool(), list.String())
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.False(t, row.IsValid)
}

func TestProcessSplitsSetEmptyMatchesZeroHash(t *testing.T) {
	engine, db, _, _ := testEngine(t)
	ctx := testCtx(t)

	list := mustID(t, accountid.DriverDripList, 41414)
	cleanupAccount(t, db, list.String())

	err := engine.ProcessSplitsSet(ctx, list, "SplitsSet", common.Hash{},
		storage.EventOrder{BlockNumber: 8, LogIndex: 0})
	require.NoError(t, err)

	row, err := storage.NewDripListRepository().Get(ctx, db.Pool(), list.String())
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.IsValid)
}

func TestProcessTransferCreatesAndReassigns(t *testing.T) {
	engine, db, _, _ := testEngine(t)
	ctx := testCtx(t)

	token := mustID(t, accountid.DriverDripList, 52525)
	cleanupAccount(t, db, token.String())

	first := common.HexToAddress("0x1111111111111111111111111111111111111111")
	second := common.HexToAddress("0x2222222222222222222222222222222222222222")

	err := engine.ProcessTransfer(ctx, token, "Transfer", first,
		storage.EventOrder{BlockNumber: 1, LogIndex: 0})
	require.NoError(t, err)

	lists := storage.NewDripListRepository()
	row, err := lists.Get(ctx, db.Pool(), token.String())
	require.NoError(t, err)
	require.NotNil(t, row)
	require.NotNil(t, row.OwnerAddress)
	assert.Equal(t, first.Hex(), *row.OwnerAddress)

	err = engine.ProcessTransfer(ctx, token, "Transfer", second,
		storage.EventOrder{BlockNumber: 2, LogIndex: 0})
	require.NoError(t, err)

	row, err = lists.Get(ctx, db.Pool(), token.String())
	require.NoError(t, err)
	require.NotNil(t, row.OwnerAddress)
	assert.Equal(t, second.Hex(), *row.OwnerAddress)
}

func TestDeadlineCreatedTriggersCascade(t *testing.T) {
	engine, db, contract, _ := testEngine(t)
	ctx := testCtx(t)

	deadline := mustID(t, accountid.DriverDeadline, 60601)
	project := mustID(t, accountid.DriverProject, 60602)
	sender := mustID(t, accountid.DriverDripList, 60603)
	refund := mustID(t, accountid.DriverAddress, 60604)
	cleanupAccount(t, db, deadline.String(), project.String(), sender.String())

	// A sender already holds an edge into the not-yet-seen deadline
	// account and is currently invalid.
	err := db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := storage.NewDripListRepository().FindOrCreateForUpdate(ctx, tx, sender.String()); err != nil {
			return err
		}
		return storage.NewSplitReceiverRepository().ReplaceReceiversFor(ctx, tx, sender.String(), []models.SplitReceiver{{
			SenderAccountID:     sender.String(),
			SenderAccountType:   "dripList",
			ReceiverAccountID:   deadline.String(),
			ReceiverAccountType: "deadline",
			RelationshipType:    models.RelReceiver,
			Weight:              1000000,
			BlockTimestamp:      time.Now().UTC(),
		}})
	})
	require.NoError(t, err)

	// The sender's stored edges hash to the on-chain value.
	hash, err := splits.HashOf([]splits.Receiver{{AccountID: deadline, Weight: 1000000}})
	require.NoError(t, err)
	contract.hashes[sender.String()] = hash

	err = engine.ProcessDeadlineCreated(ctx, &models.Deadline{
		AccountID:         deadline.String(),
		ReceiverAccountID: sender.String(),
		ProjectAccountID:  project.String(),
		RefundAccountID:   refund.String(),
		ClaimDeadline:     time.Unix(1800000000, 0).UTC(),
		IsVisible:         true,
	}, "DeadlineCreated", storage.EventOrder{BlockNumber: 30, LogIndex: 0})
	require.NoError(t, err)

	got, err := storage.NewDeadlineRepository().Get(ctx, db.Pool(), deadline.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, project.String(), got.ProjectAccountID)

	// Cascade revalidated the sender.
	row, err := storage.NewDripListRepository().Get(ctx, db.Pool(), sender.String())
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.IsValid)
}

func TestCascadeOwnerMismatchLeavesSenderInvalid(t *testing.T) {
	engine, db, contract, _ := testEngine(t)
	ctx := testCtx(t)

	target := mustID(t, accountid.DriverAddress, 90901)
	sender := mustID(t, accountid.DriverDripList, 90902)
	cleanupAccount(t, db, target.String(), sender.String())

	first := common.HexToAddress("0x1111111111111111111111111111111111111111")
	err := engine.ProcessTransfer(ctx, sender, "Transfer", first,
		storage.EventOrder{BlockNumber: 1, LogIndex: 0})
	require.NoError(t, err)

	err = db.InTx(ctx, func(tx pgx.Tx) error {
		return storage.NewSplitReceiverRepository().ReplaceReceiversFor(ctx, tx, sender.String(), []models.SplitReceiver{{
			SenderAccountID:     sender.String(),
			SenderAccountType:   "dripList",
			ReceiverAccountID:   target.String(),
			ReceiverAccountType: "address",
			RelationshipType:    models.RelReceiver,
			Weight:              1000000,
			BlockTimestamp:      time.Now().UTC(),
		}})
	})
	require.NoError(t, err)

	// The hash matches but ownership moved on-chain, so the cascade must
	// not assert validity for this sender.
	hash, err := splits.HashOf([]splits.Receiver{{AccountID: target, Weight: 1000000}})
	require.NoError(t, err)
	contract.hashes[sender.String()] = hash
	contract.owners[sender.String()] = common.HexToAddress("0x2222222222222222222222222222222222222222")

	engine.RevalidateSenders(ctx, target)

	row, err := storage.NewDripListRepository().Get(ctx, db.Pool(), sender.String())
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.False(t, row.IsValid)
}

func TestSupersededEventIsSkipped(t *testing.T) {
	engine, db, _, _ := testEngine(t)
	ctx := testCtx(t)

	project := mustID(t, accountid.DriverProject, 70707)
	cleanupAccount(t, db, project.String())

	// Record a newer event for the same account and signature.
	_, err := storage.NewEventRepository().Insert(ctx, db.Pool(), &models.EventRow{
		TransactionHash: "0xcascade01",
		LogIndex:        5,
		Signature:       "OwnerUpdated",
		AccountID:       project.String(),
		BlockNumber:     100,
		BlockTimestamp:  time.Now().UTC(),
		RawEvent:        []byte(`{}`),
	})
	require.NoError(t, err)

	stale := common.HexToAddress("0x3333333333333333333333333333333333333333")
	err = engine.ProcessOwnerUpdated(ctx, project, "OwnerUpdated", stale,
		storage.EventOrder{BlockNumber: 99, LogIndex: 0})
	require.NoError(t, err, "stale events are no-ops")

	p, err := storage.NewProjectRepository().Get(ctx, db.Pool(), project.String())
	require.NoError(t, err)
	assert.Nil(t, p, "a superseded event must not create state")
}
