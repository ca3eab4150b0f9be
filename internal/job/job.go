// Package job provides the Redis-backed retry queue between event ingest
// and the reconciliation handlers. Every decoded log becomes one job;
// failed jobs are re-enqueued with exponential backoff until they succeed,
// are classified unretryable, or exhaust their attempts.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is one unit of reconciliation work: a single decoded log event
type Job struct {
	ID              string          `json:"id"`
	Signature       string          `json:"signature"`
	TransactionHash string          `json:"transactionHash"`
	LogIndex        uint32          `json:"logIndex"`
	BlockNumber     uint64          `json:"blockNumber"`
	BlockTimestamp  time.Time       `json:"blockTimestamp"`
	AccountID       string          `json:"accountId"`
	Args            json.RawMessage `json:"args"`
	Attempt         int             `json:"attempt"`
	EnqueuedAt      time.Time       `json:"enqueuedAt"`
	LastError       string          `json:"lastError,omitempty"`
}

// NewJob creates a job with a fresh ID for a decoded event
func NewJob(signature, txHash string, logIndex uint32, blockNumber uint64, blockTimestamp time.Time, accountID string, args json.RawMessage) *Job {
	return &Job{
		ID:              uuid.New().String(),
		Signature:       signature,
		TransactionHash: txHash,
		LogIndex:        logIndex,
		BlockNumber:     blockNumber,
		BlockTimestamp:  blockTimestamp,
		AccountID:       accountID,
		Args:            args,
		EnqueuedAt:      time.Now().UTC(),
	}
}

// Marshal serializes the job for the queue transport
func (j *Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

// UnmarshalJob deserializes a job from the queue transport
func UnmarshalJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
