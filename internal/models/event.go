package models

import "time"

// EventRow is one append-only, deduplicated log record. The composite key
// (transaction_hash, log_index) is the idempotency key: a second delivery
// of the same log hits the unique constraint and becomes a no-op.
type EventRow struct {
	TransactionHash string    `json:"transactionHash" db:"transaction_hash"`
	LogIndex        uint32    `json:"logIndex" db:"log_index"`
	Signature       string    `json:"signature" db:"signature"`
	AccountID       string    `json:"accountId" db:"account_id"`
	BlockNumber     uint64    `json:"blockNumber" db:"block_number"`
	BlockTimestamp  time.Time `json:"blockTimestamp" db:"block_timestamp"`
	RawEvent        []byte    `json:"rawEvent" db:"raw_event"` // undecoded payload for replay/audit
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}
