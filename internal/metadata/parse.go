package metadata

import (
	"encoding/json"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

// Wire shapes. The envelope carries the driver and version discriminators;
// the rest of the document is decoded per variant.

type wireEnvelope struct {
	Driver    string         `json:"driver"`
	Version   string         `json:"version"`
	Type      string         `json:"type"`
	Describes wireAccountRef `json:"describes"`
}

type wireAccountRef struct {
	AccountID string `json:"accountId"`
}

type wireSource struct {
	Forge     string `json:"forge"`
	OwnerName string `json:"ownerName"`
	RepoName  string `json:"repoName"`
}

type wireReceiver struct {
	AccountID string      `json:"accountId"`
	Weight    uint32      `json:"weight"`
	Source    *wireSource `json:"source,omitempty"`
}

type wireSplits struct {
	Dependencies []wireReceiver `json:"dependencies"`
	Maintainers  []wireReceiver `json:"maintainers"`
	Receivers    []wireReceiver `json:"receivers"`
}

type wireProjectDoc struct {
	wireEnvelope
	Source    wireSource `json:"source"`
	Color     *string    `json:"color"`
	Emoji     *string    `json:"emoji"`
	AvatarCID *string    `json:"avatarCid"`
	IsVisible *bool      `json:"isVisible"`
	// v1 kept the receiver lists at the top level
	Dependencies []wireReceiver `json:"dependencies"`
	Maintainers  []wireReceiver `json:"maintainers"`
	// v2+ nests them under splits
	Splits *wireSplits `json:"splits"`
}

type wireListDoc struct {
	wireEnvelope
	Name        string `json:"name"`
	Description string `json:"description"`
	IsVisible   *bool  `json:"isVisible"`
	// v1 called the receiver list "projects"
	Projects []wireReceiver `json:"projects"`
	// v2+ nests receivers under splits
	Splits *wireSplits `json:"splits"`
}

type wireSubListDoc struct {
	wireEnvelope
	Parent wireAccountRef `json:"parent"`
	Root   wireAccountRef `json:"root"`
	Splits *wireSplits    `json:"splits"`
}

type wireLinkedIdentityDoc struct {
	wireEnvelope
	Identity struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"identity"`
	Owner struct {
		Address string `json:"address"`
	} `json:"owner"`
}

// Parse decodes a fetched document against the versioned schema union and
// normalizes it. Any failure here is a Validation error: the document is
// content-addressed, so retrying can never change the outcome.
func Parse(data []byte) (*Parsed, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, indexererr.Validation("METADATA_MALFORMED", "document is not valid JSON").WithCause(err)
	}

	switch env.Driver {
	case "repo":
		return parseProject(data, env)
	case "nft":
		return parseList(data, env)
	case "immutable-splits":
		return parseSubList(data, env)
	case "linked-identity":
		return parseLinkedIdentity(data, env)
	default:
		return nil, indexererr.Validation("METADATA_UNKNOWN_DRIVER", "unsupported metadata driver %q", env.Driver)
	}
}

func parseDescribes(env wireEnvelope, want accountid.DriverKind) (accountid.AccountID, error) {
	id, err := accountid.FromDecimal(env.Describes.AccountID)
	if err != nil {
		return accountid.AccountID{}, err
	}
	if err := id.AssertDriver(want); err != nil {
		return accountid.AccountID{}, err
	}
	return id, nil
}

func parseSource(s wireSource) (ProjectSource, error) {
	forge := models.Forge(s.Forge)
	if _, ok := models.ForgeNumber(forge); !ok {
		return ProjectSource{}, indexererr.Validation("METADATA_UNKNOWN_FORGE", "unsupported forge %q", s.Forge)
	}
	if s.OwnerName == "" || s.RepoName == "" {
		return ProjectSource{}, indexererr.Validation("METADATA_BAD_SOURCE", "source owner and repo names are required")
	}
	return ProjectSource{Forge: forge, OwnerName: s.OwnerName, RepoName: s.RepoName}, nil
}

func parseReceivers(ws []wireReceiver, rel models.RelationshipType) ([]ReceiverRef, error) {
	out := make([]ReceiverRef, 0, len(ws))
	for _, w := range ws {
		id, err := accountid.FromDecimal(w.AccountID)
		if err != nil {
			return nil, err
		}
		if w.Weight == 0 || w.Weight > models.TotalSplitsWeight {
			return nil, indexererr.Validation("METADATA_BAD_WEIGHT",
				"receiver %s has weight %d outside (0, %d]", w.AccountID, w.Weight, models.TotalSplitsWeight)
		}
		ref := ReceiverRef{AccountID: id, Weight: w.Weight, Relationship: rel}
		if w.Source != nil {
			src, err := parseSource(*w.Source)
			if err != nil {
				return nil, err
			}
			ref.Source = &src
		}
		out = append(out, ref)
	}
	return out, nil
}

func parseProject(data []byte, env wireEnvelope) (*Parsed, error) {
	var doc wireProjectDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, indexererr.Validation("METADATA_MALFORMED", "malformed project document").WithCause(err)
	}

	describes, err := parseDescribes(env, accountid.DriverProject)
	if err != nil {
		return nil, err
	}
	source, err := parseSource(doc.Source)
	if err != nil {
		return nil, err
	}

	deps, maints := doc.Dependencies, doc.Maintainers
	if doc.Splits != nil {
		deps, maints = doc.Splits.Dependencies, doc.Splits.Maintainers
	}
	dependencies, err := parseReceivers(deps, models.RelDependency)
	if err != nil {
		return nil, err
	}
	maintainers, err := parseReceivers(maints, models.RelMaintainer)
	if err != nil {
		return nil, err
	}

	visible := true
	if doc.IsVisible != nil {
		visible = *doc.IsVisible
	}

	return &Parsed{
		Kind:    KindProject,
		Version: env.Version,
		Project: &ProjectMetadata{
			Describes:    describes,
			Source:       source,
			Color:        doc.Color,
			Emoji:        doc.Emoji,
			AvatarCID:    doc.AvatarCID,
			IsVisible:    visible,
			Dependencies: dependencies,
			Maintainers:  maintainers,
		},
	}, nil
}

func parseList(data []byte, env wireEnvelope) (*Parsed, error) {
	var doc wireListDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, indexererr.Validation("METADATA_MALFORMED", "malformed list document").WithCause(err)
	}

	// v1 documents predate ecosystems and carry no type discriminator.
	kind := KindDripList
	wantDriver := accountid.DriverDripList
	switch doc.Type {
	case "", "dripList":
	case "ecosystem":
		kind = KindEcosystem
		wantDriver = accountid.DriverEcosystem
	default:
		return nil, indexererr.Validation("METADATA_UNKNOWN_TYPE", "unsupported list type %q", doc.Type)
	}

	describes, err := parseDescribes(env, wantDriver)
	if err != nil {
		return nil, err
	}

	wireReceivers := doc.Projects
	if doc.Splits != nil {
		wireReceivers = doc.Splits.Receivers
	}
	receivers, err := parseReceivers(wireReceivers, models.RelReceiver)
	if err != nil {
		return nil, err
	}

	visible := true
	if doc.IsVisible != nil {
		visible = *doc.IsVisible
	}

	return &Parsed{
		Kind:    kind,
		Version: env.Version,
		List: &ListMetadata{
			Describes:   describes,
			Kind:        kind,
			Name:        doc.Name,
			Description: doc.Description,
			IsVisible:   visible,
			Receivers:   receivers,
		},
	}, nil
}

func parseSubList(data []byte, env wireEnvelope) (*Parsed, error) {
	var doc wireSubListDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, indexererr.Validation("METADATA_MALFORMED", "malformed sub-list document").WithCause(err)
	}

	describes, err := parseDescribes(env, accountid.DriverSubList)
	if err != nil {
		return nil, err
	}
	parent, err := accountid.FromDecimal(doc.Parent.AccountID)
	if err != nil {
		return nil, err
	}
	root, err := accountid.FromDecimal(doc.Root.AccountID)
	if err != nil {
		return nil, err
	}

	switch parent.Driver() {
	case accountid.DriverDripList, accountid.DriverEcosystem, accountid.DriverSubList:
	default:
		return nil, indexererr.Validation("METADATA_BAD_LINEAGE",
			"sub-list parent %s has driver %s", parent.String(), parent.Driver())
	}
	switch root.Driver() {
	case accountid.DriverDripList, accountid.DriverEcosystem:
	default:
		return nil, indexererr.Validation("METADATA_BAD_LINEAGE",
			"sub-list root %s has driver %s", root.String(), root.Driver())
	}

	var wireReceivers []wireReceiver
	if doc.Splits != nil {
		wireReceivers = doc.Splits.Receivers
	}
	receivers, err := parseReceivers(wireReceivers, models.RelReceiver)
	if err != nil {
		return nil, err
	}

	return &Parsed{
		Kind:    KindSubList,
		Version: env.Version,
		SubList: &SubListMetadata{
			Describes: describes,
			Parent:    parent,
			Root:      root,
			Receivers: receivers,
		},
	}, nil
}

func parseLinkedIdentity(data []byte, env wireEnvelope) (*Parsed, error) {
	var doc wireLinkedIdentityDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, indexererr.Validation("METADATA_MALFORMED", "malformed linked-identity document").WithCause(err)
	}

	describes, err := parseDescribes(env, accountid.DriverLinkedIdentity)
	if err != nil {
		return nil, err
	}
	if models.IdentityType(doc.Identity.Type) != models.IdentityOrcid {
		return nil, indexererr.Validation("METADATA_UNKNOWN_IDENTITY", "unsupported identity type %q", doc.Identity.Type)
	}
	if doc.Identity.Value == "" {
		return nil, indexererr.Validation("METADATA_BAD_IDENTITY", "identity value is required")
	}
	if doc.Owner.Address == "" {
		return nil, indexererr.Validation("METADATA_BAD_OWNER", "owner address is required")
	}

	return &Parsed{
		Kind:    KindLinkedIdentity,
		Version: env.Version,
		LinkedIdentity: &LinkedIdentityMetadata{
			Describes:     describes,
			IdentityType:  models.IdentityType(doc.Identity.Type),
			IdentityValue: doc.Identity.Value,
			OwnerAddress:  doc.Owner.Address,
		},
	}, nil
}
