package metadata

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/indexererr"
	"github.com/splits-indexer/internal/models"
)

func testID(t *testing.T, driver accountid.DriverKind, payload int64) accountid.AccountID {
	t.Helper()
	id, err := accountid.MakeID(driver, big.NewInt(payload))
	require.NoError(t, err)
	return id
}

func TestParseProjectV1(t *testing.T) {
	project := testID(t, accountid.DriverProject, 777)
	depA := testID(t, accountid.DriverProject, 1)
	maintainer := testID(t, accountid.DriverAddress, 2)

	doc := fmt.Sprintf(`{
		"driver": "repo",
		"version": "1",
		"describes": {"accountId": "%s"},
		"source": {"forge": "github", "ownerName": "acme", "repoName": "widget"},
		"dependencies": [
			{"accountId": "%s", "weight": 400000,
			 "source": {"forge": "github", "ownerName": "dep", "repoName": "lib"}}
		],
		"maintainers": [{"accountId": "%s", "weight": 600000}]
	}`, project, depA, maintainer)

	parsed, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, KindProject, parsed.Kind)
	assert.Equal(t, "1", parsed.Version)
	require.NotNil(t, parsed.Project)

	p := parsed.Project
	assert.Equal(t, 0, p.Describes.Cmp(project))
	assert.Equal(t, "acme/widget", p.Source.Name())
	assert.True(t, p.IsVisible)

	require.Len(t, p.Dependencies, 1)
	assert.Equal(t, models.RelDependency, p.Dependencies[0].Relationship)
	require.NotNil(t, p.Dependencies[0].Source)
	assert.Equal(t, "dep/lib", p.Dependencies[0].Source.Name())

	require.Len(t, p.Maintainers, 1)
	assert.Equal(t, models.RelMaintainer, p.Maintainers[0].Relationship)
	assert.Len(t, p.Receivers(), 2)
}

func TestParseProjectV2NestedSplits(t *testing.T) {
	project := testID(t, accountid.DriverProject, 778)
	dep := testID(t, accountid.DriverDripList, 9)

	doc := fmt.Sprintf(`{
		"driver": "repo",
		"version": "2",
		"describes": {"accountId": "%s"},
		"source": {"forge": "gitlab", "ownerName": "acme", "repoName": "widget"},
		"color": "#ff0000",
		"emoji": "🌻",
		"isVisible": false,
		"splits": {
			"dependencies": [{"accountId": "%s", "weight": 250000}],
			"maintainers": []
		}
	}`, project, dep)

	parsed, err := Parse([]byte(doc))
	require.NoError(t, err)

	p := parsed.Project
	require.NotNil(t, p)
	// v1 and v2 normalize to the same logical shape.
	require.Len(t, p.Dependencies, 1)
	assert.Empty(t, p.Maintainers)
	assert.False(t, p.IsVisible)
	require.NotNil(t, p.Color)
	assert.Equal(t, "#ff0000", *p.Color)
}

func TestParseDripListV1(t *testing.T) {
	list := testID(t, accountid.DriverDripList, 5)
	receiver := testID(t, accountid.DriverProject, 6)

	doc := fmt.Sprintf(`{
		"driver": "nft",
		"version": "1",
		"describes": {"accountId": "%s"},
		"name": "my list",
		"projects": [{"accountId": "%s", "weight": 1000000}]
	}`, list, receiver)

	parsed, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, KindDripList, parsed.Kind)
	require.NotNil(t, parsed.List)
	assert.Equal(t, "my list", parsed.List.Name)
	require.Len(t, parsed.List.Receivers, 1)
	assert.Equal(t, models.RelReceiver, parsed.List.Receivers[0].Relationship)
}

func TestParseEcosystemV2(t *testing.T) {
	eco := testID(t, accountid.DriverEcosystem, 11)
	sub := testID(t, accountid.DriverSubList, 12)

	doc := fmt.Sprintf(`{
		"driver": "nft",
		"version": "2",
		"type": "ecosystem",
		"describes": {"accountId": "%s"},
		"name": "solar",
		"description": "ecosystem fund",
		"splits": {"receivers": [{"accountId": "%s", "weight": 1000000}]}
	}`, eco, sub)

	parsed, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, KindEcosystem, parsed.Kind)
	assert.Equal(t, KindEcosystem, parsed.List.Kind)
	assert.Equal(t, "solar", parsed.List.Name)
}

func TestParseEcosystemRejectsDripListID(t *testing.T) {
	// type says ecosystem but the described ID carries the drip-list tag
	list := testID(t, accountid.DriverDripList, 5)
	doc := fmt.Sprintf(`{
		"driver": "nft",
		"version": "2",
		"type": "ecosystem",
		"describes": {"accountId": "%s"}
	}`, list)

	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.True(t, indexererr.IsValidation(err))
}

func TestParseSubList(t *testing.T) {
	sub := testID(t, accountid.DriverSubList, 20)
	parent := testID(t, accountid.DriverEcosystem, 21)
	root := testID(t, accountid.DriverEcosystem, 21)
	receiver := testID(t, accountid.DriverProject, 22)

	doc := fmt.Sprintf(`{
		"driver": "immutable-splits",
		"version": "1",
		"describes": {"accountId": "%s"},
		"parent": {"accountId": "%s"},
		"root": {"accountId": "%s"},
		"splits": {"receivers": [{"accountId": "%s", "weight": 1000000}]}
	}`, sub, parent, root, receiver)

	parsed, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, KindSubList, parsed.Kind)
	require.NotNil(t, parsed.SubList)
	assert.Equal(t, 0, parsed.SubList.Parent.Cmp(parent))
	assert.Equal(t, 0, parsed.SubList.Root.Cmp(root))
}

func TestParseSubListRejectsBadLineage(t *testing.T) {
	sub := testID(t, accountid.DriverSubList, 20)
	badParent := testID(t, accountid.DriverAddress, 1)
	root := testID(t, accountid.DriverDripList, 2)

	doc := fmt.Sprintf(`{
		"driver": "immutable-splits",
		"version": "1",
		"describes": {"accountId": "%s"},
		"parent": {"accountId": "%s"},
		"root": {"accountId": "%s"}
	}`, sub, badParent, root)

	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.True(t, indexererr.IsValidation(err))
}

func TestParseLinkedIdentity(t *testing.T) {
	identity := testID(t, accountid.DriverLinkedIdentity, 30)

	doc := fmt.Sprintf(`{
		"driver": "linked-identity",
		"version": "1",
		"describes": {"accountId": "%s"},
		"identity": {"type": "orcid", "value": "0000-0002-1825-0097"},
		"owner": {"address": "0x8e989043b9abd895361eb874b10abee5c612a504"}
	}`, identity)

	parsed, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, KindLinkedIdentity, parsed.Kind)
	require.NotNil(t, parsed.LinkedIdentity)
	assert.Equal(t, models.IdentityOrcid, parsed.LinkedIdentity.IdentityType)
	assert.Equal(t, "0000-0002-1825-0097", parsed.LinkedIdentity.IdentityValue)
}

func TestParseFailuresAreValidationErrors(t *testing.T) {
	project := testID(t, accountid.DriverProject, 1)

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{{{`},
		{"unknown driver", `{"driver": "unknown", "version": "1"}`},
		{"unknown forge", fmt.Sprintf(`{
			"driver": "repo", "version": "1",
			"describes": {"accountId": "%s"},
			"source": {"forge": "sourcehut", "ownerName": "a", "repoName": "b"}
		}`, project)},
		{"zero weight", fmt.Sprintf(`{
			"driver": "repo", "version": "1",
			"describes": {"accountId": "%s"},
			"source": {"forge": "github", "ownerName": "a", "repoName": "b"},
			"dependencies": [{"accountId": "%s", "weight": 0}]
		}`, project, project)},
		{"overweight receiver", fmt.Sprintf(`{
			"driver": "repo", "version": "1",
			"describes": {"accountId": "%s"},
			"source": {"forge": "github", "ownerName": "a", "repoName": "b"},
			"dependencies": [{"accountId": "%s", "weight": 1000001}]
		}`, project, project)},
		{"unknown identity", fmt.Sprintf(`{
			"driver": "linked-identity", "version": "1",
			"describes": {"accountId": "%s"},
			"identity": {"type": "passport", "value": "x"},
			"owner": {"address": "0x1"}
		}`, testID(t, accountid.DriverLinkedIdentity, 2))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, indexererr.IsValidation(err), "want validation error, got %v", err)
		})
	}
}
