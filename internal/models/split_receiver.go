package models

import (
	"errors"
	"time"
)

// TotalSplitsWeight is the denominator of the integer weight fraction the
// protocol distributes: a sender's receiver weights sum to this on-chain.
const TotalSplitsWeight = 1_000_000

var errSubListLineage = errors.New("sub-list must have exactly one parent and one root pointer")

// RelationshipType describes why an edge exists in the splits graph
type RelationshipType string

const (
	// RelDependency is a funding edge to a declared dependency
	RelDependency RelationshipType = "dependency"
	// RelMaintainer is a funding edge to a project maintainer
	RelMaintainer RelationshipType = "maintainer"
	// RelReceiver is a generic list/ecosystem receiver edge
	RelReceiver RelationshipType = "receiver"
)

// SplitReceiver is one directed weighted edge of the splits graph.
// For a given sender the full edge set is replaced atomically, never
// patched incrementally.
type SplitReceiver struct {
	ID                  int64            `json:"id" db:"id"`
	SenderAccountID     string           `json:"senderAccountId" db:"sender_account_id"`
	SenderAccountType   string           `json:"senderAccountType" db:"sender_account_type"`
	ReceiverAccountID   string           `json:"receiverAccountId" db:"receiver_account_id"`
	ReceiverAccountType string           `json:"receiverAccountType" db:"receiver_account_type"`
	RelationshipType    RelationshipType `json:"relationshipType" db:"relationship_type"`
	Weight              uint32           `json:"weight" db:"weight"`
	BlockTimestamp      time.Time        `json:"blockTimestamp" db:"block_timestamp"`
	CreatedAt           time.Time        `json:"createdAt" db:"created_at"`
}
