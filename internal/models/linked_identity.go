package models

import "time"

// IdentityType identifies an external identity scheme
type IdentityType string

const (
	// IdentityOrcid represents an ORCID researcher identity
	IdentityOrcid IdentityType = "orcid"
)

// LinkedIdentity represents an external identity account owned by an
// address. Carries isLinked instead of isValid.
type LinkedIdentity struct {
	AccountID             string       `json:"accountId" db:"account_id"`
	IdentityType          IdentityType `json:"identityType" db:"identity_type"`
	IdentityValue         *string      `json:"identityValue,omitempty" db:"identity_value"`
	OwnerAddress          *string      `json:"ownerAddress,omitempty" db:"owner_address"`
	OwnerAccountID        *string      `json:"ownerAccountId,omitempty" db:"owner_account_id"`
	IsLinked              bool         `json:"isLinked" db:"is_linked"`
	IsVisible             bool         `json:"isVisible" db:"is_visible"`
	LastProcessedIpfsHash *string      `json:"lastProcessedIpfsHash,omitempty" db:"last_processed_ipfs_hash"`
	LastProcessedVersion  *string      `json:"lastProcessedVersion,omitempty" db:"last_processed_version"`
	CreatedAt             time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt             time.Time    `json:"updatedAt" db:"updated_at"`
}
