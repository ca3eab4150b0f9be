package models

import "time"

// DripList represents an NFT-driver drip list account
type DripList struct {
	AccountID             string    `json:"accountId" db:"account_id"`
	Name                  *string   `json:"name,omitempty" db:"name"`
	Description           *string   `json:"description,omitempty" db:"description"`
	OwnerAddress          *string   `json:"ownerAddress,omitempty" db:"owner_address"`
	OwnerAccountID        *string   `json:"ownerAccountId,omitempty" db:"owner_account_id"`
	IsValid               bool      `json:"isValid" db:"is_valid"`
	IsVisible             bool      `json:"isVisible" db:"is_visible"`
	LastProcessedIpfsHash *string   `json:"lastProcessedIpfsHash,omitempty" db:"last_processed_ipfs_hash"`
	LastProcessedVersion  *string   `json:"lastProcessedVersion,omitempty" db:"last_processed_version"`
	CreatedAt             time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt             time.Time `json:"updatedAt" db:"updated_at"`
}

// EcosystemMainAccount represents the root account of an ecosystem tree
type EcosystemMainAccount struct {
	AccountID             string    `json:"accountId" db:"account_id"`
	Name                  *string   `json:"name,omitempty" db:"name"`
	Description           *string   `json:"description,omitempty" db:"description"`
	OwnerAddress          *string   `json:"ownerAddress,omitempty" db:"owner_address"`
	OwnerAccountID        *string   `json:"ownerAccountId,omitempty" db:"owner_account_id"`
	IsValid               bool      `json:"isValid" db:"is_valid"`
	IsVisible             bool      `json:"isVisible" db:"is_visible"`
	LastProcessedIpfsHash *string   `json:"lastProcessedIpfsHash,omitempty" db:"last_processed_ipfs_hash"`
	LastProcessedVersion  *string   `json:"lastProcessedVersion,omitempty" db:"last_processed_version"`
	CreatedAt             time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt             time.Time `json:"updatedAt" db:"updated_at"`
}

// SubList represents an immutable sub-list node in a list tree.
// Exactly one parent pointer and exactly one root pointer is populated,
// depending on the lineage type at each level.
type SubList struct {
	AccountID             string    `json:"accountId" db:"account_id"`
	ParentDripListID      *string   `json:"parentDripListId,omitempty" db:"parent_drip_list_id"`
	ParentEcosystemID     *string   `json:"parentEcosystemId,omitempty" db:"parent_ecosystem_id"`
	ParentSubListID       *string   `json:"parentSubListId,omitempty" db:"parent_sub_list_id"`
	RootDripListID        *string   `json:"rootDripListId,omitempty" db:"root_drip_list_id"`
	RootEcosystemID       *string   `json:"rootEcosystemId,omitempty" db:"root_ecosystem_id"`
	IsValid               bool      `json:"isValid" db:"is_valid"`
	IsVisible             bool      `json:"isVisible" db:"is_visible"`
	LastProcessedIpfsHash *string   `json:"lastProcessedIpfsHash,omitempty" db:"last_processed_ipfs_hash"`
	LastProcessedVersion  *string   `json:"lastProcessedVersion,omitempty" db:"last_processed_version"`
	CreatedAt             time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt             time.Time `json:"updatedAt" db:"updated_at"`
}

// Validate checks the single-lineage pointer rule
func (s *SubList) Validate() error {
	parents := 0
	if s.ParentDripListID != nil {
		parents++
	}
	if s.ParentEcosystemID != nil {
		parents++
	}
	if s.ParentSubListID != nil {
		parents++
	}
	roots := 0
	if s.RootDripListID != nil {
		roots++
	}
	if s.RootEcosystemID != nil {
		roots++
	}
	if parents != 1 || roots != 1 {
		return errSubListLineage
	}
	return nil
}
