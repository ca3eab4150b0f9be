package events

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/config"
	"github.com/splits-indexer/internal/job"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/storage"
)

type fakeLogSource struct {
	head    uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
}

func (f *fakeLogSource) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeLogSource) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, q)
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= q.FromBlock.Uint64() && log.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeLogSource) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: number, Time: 1700000000 + number.Uint64()}, nil
}

func watcherTestDB(t *testing.T) *storage.PostgresDB {
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
	return db
}

func TestWatcherSyncIngestsAndAdvancesCursor(t *testing.T) {
	db := watcherTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	decoder, err := NewDecoder()
	require.NoError(t, err)

	project, err := accountid.MakeID(accountid.DriverProject, big.NewInt(990042))
	require.NoError(t, err)
	owner := common.HexToAddress("0x3333333333333333333333333333333333333333")
	txHash := common.HexToHash("0x77aa77aa")

	cleanup := func() {
		_, err := db.Pool().Exec(ctx, `DELETE FROM events WHERE transaction_hash = $1`, txHash.Hex())
		require.NoError(t, err)
		_, err = db.Pool().Exec(ctx, `DELETE FROM ingest_cursor`)
		require.NoError(t, err)
	}
	cleanup()
	t.Cleanup(cleanup)

	source := &fakeLogSource{
		head: 105,
		logs: []types.Log{
			{
				Topics: []common.Hash{
					decoder.abi.Events["OwnerUpdated"].ID,
					accountTopic(project),
				},
				Data:        packNonIndexed(t, decoder, "OwnerUpdated", owner),
				TxHash:      txHash,
				Index:       2,
				BlockNumber: 50,
			},
			// Foreign contract log sharing the address filter, must be ignored.
			{
				Topics:      []common.Hash{common.HexToHash("0x01")},
				TxHash:      txHash,
				Index:       3,
				BlockNumber: 50,
			},
		},
	}

	queue := job.NewQueue(client)
	ingestor := NewIngestor(db, queue)
	watcher := NewWatcher(source, decoder, ingestor, db, &config.ChainConfig{
		DripsContract:   "0x00000000000000000000000000000000000000aa",
		RepoDriver:      "0x00000000000000000000000000000000000000bb",
		PollInterval:    time.Second,
		ConfirmationLag: 5,
	}, logging.NewLogger(logging.LevelError, logging.FormatJSON))

	require.NoError(t, watcher.sync(ctx))

	// The decodable log became an event row and a job; the cursor trails
	// the head by the confirmation lag.
	j, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, SigOwnerUpdated, j.Signature)
	assert.Equal(t, project.String(), j.AccountID)
	assert.Equal(t, uint64(50), j.BlockNumber)
	assert.Equal(t, time.Unix(1700000050, 0).UTC(), j.BlockTimestamp)

	require.Len(t, source.queries, 1)
	assert.Equal(t, uint64(0), source.queries[0].FromBlock.Uint64())
	assert.Equal(t, uint64(100), source.queries[0].ToBlock.Uint64())

	// Same range is never re-scanned, and a redelivered log never becomes
	// a second job.
	source.head = 110
	source.logs[0].BlockNumber = 103
	require.NoError(t, watcher.sync(ctx))

	require.Len(t, source.queries, 2)
	assert.Equal(t, uint64(101), source.queries[1].FromBlock.Uint64())
	assert.Equal(t, uint64(105), source.queries[1].ToBlock.Uint64())

	j, err = queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestWatcherSyncHoldsBelowConfirmationLag(t *testing.T) {
	db := watcherTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	decoder, err := NewDecoder()
	require.NoError(t, err)

	source := &fakeLogSource{head: 3}
	watcher := NewWatcher(source, decoder, NewIngestor(db, job.NewQueue(client)), db, &config.ChainConfig{
		PollInterval:    time.Second,
		ConfirmationLag: 5,
	}, logging.NewLogger(logging.LevelError, logging.FormatJSON))

	require.NoError(t, watcher.sync(ctx))
	assert.Empty(t, source.queries)
}
