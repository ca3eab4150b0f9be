// Package metadata parses off-chain metadata documents against a versioned
// schema union and normalizes every supported historical version into one
// canonical shape consumed by the reconciliation engine. Parsing never
// mutates state; a document that fails to parse is permanently invalid.
package metadata

import (
	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/models"
)

// Kind discriminates the normalized document variants
type Kind string

const (
	// KindProject describes a forge repository account
	KindProject Kind = "project"
	// KindDripList describes an NFT-driver drip list
	KindDripList Kind = "dripList"
	// KindEcosystem describes an ecosystem main account
	KindEcosystem Kind = "ecosystem"
	// KindSubList describes an immutable sub-list
	KindSubList Kind = "subList"
	// KindLinkedIdentity describes an external identity account
	KindLinkedIdentity Kind = "linkedIdentity"
)

// ProjectSource is the claimed forge source of a project
type ProjectSource struct {
	Forge     models.Forge
	OwnerName string
	RepoName  string
}

// Name returns the "owner/repo" form used by the on-chain derivation
func (s ProjectSource) Name() string {
	return s.OwnerName + "/" + s.RepoName
}

// ReceiverRef is one claimed receiver extracted from a document
type ReceiverRef struct {
	AccountID    accountid.AccountID
	Weight       uint32
	Relationship models.RelationshipType
	// Source is set for project-type receivers and is verified against
	// the contract's deterministic account-ID derivation.
	Source *ProjectSource
}

// ProjectMetadata is the normalized project document. All supported
// versions expose dependencies and maintainers here even though the wire
// field names changed between versions.
type ProjectMetadata struct {
	Describes    accountid.AccountID
	Source       ProjectSource
	Color        *string
	Emoji        *string
	AvatarCID    *string
	IsVisible    bool
	Dependencies []ReceiverRef
	Maintainers  []ReceiverRef
}

// Receivers returns the full claimed receiver set
func (m *ProjectMetadata) Receivers() []ReceiverRef {
	out := make([]ReceiverRef, 0, len(m.Dependencies)+len(m.Maintainers))
	out = append(out, m.Dependencies...)
	out = append(out, m.Maintainers...)
	return out
}

// ListMetadata is the normalized NFT-driver document, covering both drip
// lists and ecosystem main accounts (discriminated by Kind).
type ListMetadata struct {
	Describes   accountid.AccountID
	Kind        Kind
	Name        string
	Description string
	IsVisible   bool
	Receivers   []ReceiverRef
}

// SubListMetadata is the normalized immutable sub-list document. Parent
// and Root lineage types follow from the driver tags of the IDs.
type SubListMetadata struct {
	Describes accountid.AccountID
	Parent    accountid.AccountID
	Root      accountid.AccountID
	Receivers []ReceiverRef
}

// LinkedIdentityMetadata is the normalized external-identity document
type LinkedIdentityMetadata struct {
	Describes     accountid.AccountID
	IdentityType  models.IdentityType
	IdentityValue string
	OwnerAddress  string
}

// Parsed is the normalized result of resolving a content pointer
type Parsed struct {
	Kind    Kind
	Version string

	Project        *ProjectMetadata
	List           *ListMetadata
	SubList        *SubListMetadata
	LinkedIdentity *LinkedIdentityMetadata
}
