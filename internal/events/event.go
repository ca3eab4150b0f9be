// Package events turns raw chain logs into decoded events, persists them
// to the append-only log and feeds the job queue that drives the
// reconciliation engine.
package events

import (
	"encoding/json"
	"time"
)

// Handled event signatures. The registry maps each one explicitly to a
// processor; logs with any other signature are ignored at decode time.
const (
	SigAccountMetadataEmitted = "AccountMetadataEmitted(uint256,bytes32,bytes)"
	SigSplitsSet              = "SplitsSet(uint256,bytes32)"
	SigOwnerUpdateRequested   = "OwnerUpdateRequested(uint256,uint8,bytes)"
	SigOwnerUpdated           = "OwnerUpdated(uint256,address)"
	SigTransfer               = "Transfer(address,address,uint256)"
	SigDeadlineCreated        = "DeadlineCreated(uint256,uint256,uint256,uint256,uint256)"
)

// Event is one decoded log, ready to be persisted and enqueued
type Event struct {
	Signature       string
	AccountID       string // decimal account ID the event is about
	TransactionHash string
	LogIndex        uint32
	BlockNumber     uint64
	BlockTimestamp  time.Time
	Args            json.RawMessage
}

// AccountMetadataArgs carries the decoded AccountMetadataEmitted payload.
// Key is the trimmed bytes32 metadata key; Value the announced content hash.
type AccountMetadataArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SplitsSetArgs carries the announced receiver-set hash
type SplitsSetArgs struct {
	ReceiversHash string `json:"receiversHash"`
}

// OwnerUpdateRequestedArgs carries the claimed forge source
type OwnerUpdateRequestedArgs struct {
	Forge uint8  `json:"forge"`
	Name  string `json:"name"`
}

// OwnerUpdatedArgs carries the confirmed owner address
type OwnerUpdatedArgs struct {
	Owner string `json:"owner"`
}

// TransferArgs carries an NFT ownership change
type TransferArgs struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID string `json:"tokenId"`
}

// DeadlineCreatedArgs carries a new time-boxed claim account
type DeadlineCreatedArgs struct {
	ReceiverAccountID string `json:"receiverAccountId"`
	ProjectAccountID  string `json:"projectAccountId"`
	RefundAccountID   string `json:"refundAccountId"`
	ClaimDeadline     int64  `json:"claimDeadline"` // unix seconds
}
