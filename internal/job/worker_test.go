package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splits-indexer/internal/config"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/logging"
)

func testPool(t *testing.T, q *Queue, handler Handler, maxAttempts int) *WorkerPool {
	t.Helper()
	logger := logging.NewLogger(logging.LevelError, logging.FormatJSON)
	cfg := &config.QueueConfig{
		Workers:      1,
		MaxAttempts:  maxAttempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
		PollInterval: 5 * time.Millisecond,
	}
	return NewWorkerPool(q, handler, nil, cfg, logger)
}

func TestProcessOneSuccess(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	var handled *Job
	pool := testPool(t, q, HandlerFunc(func(ctx context.Context, j *Job) error {
		handled = j
		return nil
	}), 3)

	require.NoError(t, q.Enqueue(ctx, testJob()))

	ok, err := pool.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, handled)
	assert.Equal(t, 1, handled.Attempt)

	pending, delayed, dead, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending+delayed+dead)
}

func TestProcessOneEmptyQueue(t *testing.T) {
	q := testQueue(t)
	pool := testPool(t, q, HandlerFunc(func(ctx context.Context, j *Job) error {
		t.Fatal("handler should not run")
		return nil
	}), 3)

	ok, err := pool.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransientFailureIsRetriedWithBackoff(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	pool := testPool(t, q, HandlerFunc(func(ctx context.Context, j *Job) error {
		return indexererr.Transport("RPC_CALL", errors.New("connection refused"))
	}), 3)

	require.NoError(t, q.Enqueue(ctx, testJob()))
	_, err := pool.ProcessOne(ctx)
	require.NoError(t, err)

	pending, delayed, dead, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	assert.Equal(t, int64(1), delayed)
	assert.Equal(t, int64(0), dead)
}

func TestValidationFailureIsDropped(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	pool := testPool(t, q, HandlerFunc(func(ctx context.Context, j *Job) error {
		return indexererr.Validation("METADATA_MALFORMED", "not a json document")
	}), 3)

	require.NoError(t, q.Enqueue(ctx, testJob()))
	_, err := pool.ProcessOne(ctx)
	require.NoError(t, err)

	pending, delayed, dead, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "validation failures must not be retried")
	assert.Zero(t, delayed)
	assert.Zero(t, dead)
}

func TestInvariantFailureIsBuried(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	pool := testPool(t, q, HandlerFunc(func(ctx context.Context, j *Job) error {
		return indexererr.Invariant("MULTIPLE_VARIANTS", "account resolves to two variants")
	}), 3)

	require.NoError(t, q.Enqueue(ctx, testJob()))
	_, err := pool.ProcessOne(ctx)
	require.NoError(t, err)

	_, _, dead, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestExhaustedRetriesAreBuried(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	pool := testPool(t, q, HandlerFunc(func(ctx context.Context, j *Job) error {
		return indexererr.Recoverable("OWNER_MISMATCH", "owner not settled yet")
	}), 2)

	j := testJob()
	j.Attempt = 1 // one attempt already consumed
	require.NoError(t, q.Enqueue(ctx, j))

	_, err := pool.ProcessOne(ctx)
	require.NoError(t, err)

	pending, delayed, dead, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Zero(t, delayed)
	assert.Equal(t, int64(1), dead)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	pool := testPool(t, testQueue(t), nil, 10)
	pool.initialDelay = 5 * time.Second
	pool.maxDelay = 10 * time.Minute

	assert.Equal(t, 5*time.Second, pool.backoff(1))
	assert.Equal(t, 10*time.Second, pool.backoff(2))
	assert.Equal(t, 40*time.Second, pool.backoff(4))
	assert.Equal(t, 10*time.Minute, pool.backoff(12))
}

func TestStartAndStop(t *testing.T) {
	q := testQueue(t)
	ctx, cancel := context.WithCancel(context.Background())

	processed := make(chan string, 1)
	pool := testPool(t, q, HandlerFunc(func(ctx context.Context, j *Job) error {
		processed <- j.ID
		return nil
	}), 3)

	j := testJob()
	require.NoError(t, q.Enqueue(ctx, j))

	pool.Start(ctx)
	select {
	case id := <-processed:
		assert.Equal(t, j.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	cancel()
	pool.Wait()
}
