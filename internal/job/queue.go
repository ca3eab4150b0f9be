package job

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/splits-indexer/internal/indexererr"
)

const (
	pendingKey = "jobs:pending"
	delayedKey = "jobs:delayed"
	deadKey    = "jobs:dead"
)

// Queue is the Redis transport for reconciliation jobs. Ready jobs sit on
// a list, backoff-delayed jobs on a sorted set scored by their ready time,
// and permanently failed jobs on a dead-letter list.
type Queue struct {
	client *redis.Client
}

// NewQueue creates a queue over an existing Redis client
func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue pushes a job onto the ready list
func (q *Queue) Enqueue(ctx context.Context, j *Job) error {
	data, err := j.Marshal()
	if err != nil {
		return indexererr.Invariant("QUEUE_MARSHAL", "failed to marshal job %s: %v", j.ID, err)
	}
	if err := q.client.LPush(ctx, pendingKey, data).Err(); err != nil {
		return indexererr.Transport("QUEUE_ENQUEUE", err)
	}
	return nil
}

// EnqueueDelayed schedules a job to become ready after delay
func (q *Queue) EnqueueDelayed(ctx context.Context, j *Job, delay time.Duration) error {
	data, err := j.Marshal()
	if err != nil {
		return indexererr.Invariant("QUEUE_MARSHAL", "failed to marshal job %s: %v", j.ID, err)
	}
	member := redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: data,
	}
	if err := q.client.ZAdd(ctx, delayedKey, member).Err(); err != nil {
		return indexererr.Transport("QUEUE_ENQUEUE_DELAYED", err)
	}
	return nil
}

// Dequeue pops one ready job, or returns (nil, nil) when the queue is empty
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	data, err := q.client.RPop(ctx, pendingKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, indexererr.Transport("QUEUE_DEQUEUE", err)
	}
	j, err := UnmarshalJob(data)
	if err != nil {
		return nil, indexererr.Invariant("QUEUE_UNMARSHAL", "corrupt job payload: %v", err)
	}
	return j, nil
}

// PromoteDelayed moves all jobs whose backoff has elapsed onto the ready
// list. Returns the number of promoted jobs.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	now := time.Now().UnixMilli()
	members, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return 0, indexererr.Transport("QUEUE_PROMOTE_SCAN", err)
	}

	promoted := 0
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return promoted, indexererr.Transport("QUEUE_PROMOTE_REM", err)
		}
		// Another worker may have promoted this member first.
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, pendingKey, member).Err(); err != nil {
			return promoted, indexererr.Transport("QUEUE_PROMOTE_PUSH", err)
		}
		promoted++
	}
	return promoted, nil
}

// Bury moves a permanently failed job onto the dead-letter list
func (q *Queue) Bury(ctx context.Context, j *Job) error {
	data, err := j.Marshal()
	if err != nil {
		return indexererr.Invariant("QUEUE_MARSHAL", "failed to marshal job %s: %v", j.ID, err)
	}
	if err := q.client.LPush(ctx, deadKey, data).Err(); err != nil {
		return indexererr.Transport("QUEUE_BURY", err)
	}
	return nil
}

// Stats reports the depth of each queue segment
func (q *Queue) Stats(ctx context.Context) (pending, delayed, dead int64, err error) {
	if pending, err = q.client.LLen(ctx, pendingKey).Result(); err != nil {
		return 0, 0, 0, indexererr.Transport("QUEUE_STATS", err)
	}
	if delayed, err = q.client.ZCard(ctx, delayedKey).Result(); err != nil {
		return 0, 0, 0, indexererr.Transport("QUEUE_STATS", err)
	}
	if dead, err = q.client.LLen(ctx, deadKey).Result(); err != nil {
		return 0, 0, 0, indexererr.Transport("QUEUE_STATS", err)
	}
	return pending, delayed, dead, nil
}
