package models

import (
	"time"
)

// Forge identifies the code forge a project lives on
type Forge string

const (
	// ForgeGitHub represents github.com
	ForgeGitHub Forge = "github"
	// ForgeGitLab represents gitlab.com
	ForgeGitLab Forge = "gitlab"
)

// ForgeNumber returns the on-chain numeric forge tag used by the
// deterministic account-ID derivation.
func ForgeNumber(f Forge) (uint8, bool) {
	switch f {
	case ForgeGitHub:
		return 0, true
	case ForgeGitLab:
		return 1, true
	default:
		return 0, false
	}
}

// ProjectVerificationStatus tracks a project's claim ladder
type ProjectVerificationStatus string

const (
	// StatusUnclaimed means no owner has started the claim flow
	StatusUnclaimed ProjectVerificationStatus = "unclaimed"
	// StatusOwnerUpdateRequested means a claim was requested on-chain
	StatusOwnerUpdateRequested ProjectVerificationStatus = "owner_update_requested"
	// StatusOwnerUpdated means the driver confirmed the new owner
	StatusOwnerUpdated ProjectVerificationStatus = "owner_updated"
	// StatusPendingOwner means metadata arrived before the owner update
	StatusPendingOwner ProjectVerificationStatus = "pending_owner"
	// StatusPendingMetadata means the owner is set but metadata is missing
	StatusPendingMetadata ProjectVerificationStatus = "pending_metadata"
	// StatusClaimed means owner and metadata are both verified
	StatusClaimed ProjectVerificationStatus = "claimed"
)

// Project represents a forge repository account in the splits graph
type Project struct {
	AccountID              string                    `json:"accountId" db:"account_id"`
	Forge                  *Forge                    `json:"forge,omitempty" db:"forge"`
	Name                   *string                   `json:"name,omitempty" db:"name"` // "owner/repo"
	VerificationStatus     ProjectVerificationStatus `json:"verificationStatus" db:"verification_status"`
	OwnerAddress           *string                   `json:"ownerAddress,omitempty" db:"owner_address"`
	OwnerAccountID         *string                   `json:"ownerAccountId,omitempty" db:"owner_account_id"`
	Color                  *string                   `json:"color,omitempty" db:"color"`
	Emoji                  *string                   `json:"emoji,omitempty" db:"emoji"`
	AvatarCID              *string                   `json:"avatarCid,omitempty" db:"avatar_cid"`
	IsValid                bool                      `json:"isValid" db:"is_valid"`
	IsVisible              bool                      `json:"isVisible" db:"is_visible"`
	LastProcessedIpfsHash  *string                   `json:"lastProcessedIpfsHash,omitempty" db:"last_processed_ipfs_hash"`
	LastProcessedVersion   *string                   `json:"lastProcessedVersion,omitempty" db:"last_processed_version"`
	CreatedAt              time.Time                 `json:"createdAt" db:"created_at"`
	UpdatedAt              time.Time                 `json:"updatedAt" db:"updated_at"`
}
