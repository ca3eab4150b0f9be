package storage

import (
	"context"
	"strings"

	"github.com/splits-indexer/internal/indexererr"
)

// AccountVariant names the entity table an account ID resolved to
type AccountVariant string

const (
	VariantProject        AccountVariant = "project"
	VariantDripList       AccountVariant = "dripList"
	VariantSubList        AccountVariant = "subList"
	VariantEcosystem      AccountVariant = "ecosystemMainAccount"
	VariantLinkedIdentity AccountVariant = "linkedIdentity"
	VariantNone           AccountVariant = ""
)

// AccountResolver enforces the cross-entity invariant that an account ID
// resolves to at most one entity variant.
type AccountResolver struct{}

// NewAccountResolver creates a new account resolver
func NewAccountResolver() *AccountResolver {
	return &AccountResolver{}
}

// ResolveVariant returns the single variant holding a row for accountID,
// or VariantNone. Finding more than one is a fatal modeling bug, not a
// retryable condition.
func (r *AccountResolver) ResolveVariant(ctx context.Context, q Querier, accountID string) (AccountVariant, error) {
	checks := []struct {
		variant AccountVariant
		query   string
	}{
		{VariantProject, `SELECT EXISTS (SELECT 1 FROM projects WHERE account_id = $1)`},
		{VariantDripList, `SELECT EXISTS (SELECT 1 FROM drip_lists WHERE account_id = $1)`},
		{VariantSubList, `SELECT EXISTS (SELECT 1 FROM sub_lists WHERE account_id = $1)`},
		{VariantEcosystem, `SELECT EXISTS (SELECT 1 FROM ecosystem_main_accounts WHERE account_id = $1)`},
		{VariantLinkedIdentity, `SELECT EXISTS (SELECT 1 FROM linked_identities WHERE account_id = $1)`},
	}

	var found []AccountVariant
	for _, check := range checks {
		var exists bool
		if err := q.QueryRow(ctx, check.query, accountID).Scan(&exists); err != nil {
			return VariantNone, indexererr.Transport("DB_RESOLVE_VARIANT", err)
		}
		if exists {
			found = append(found, check.variant)
		}
	}

	switch len(found) {
	case 0:
		return VariantNone, nil
	case 1:
		return found[0], nil
	default:
		names := make([]string, len(found))
		for i, v := range found {
			names[i] = string(v)
		}
		return VariantNone, indexererr.Invariant("MULTIPLE_VARIANTS",
			"account %s resolves to multiple variants: %s", accountID, strings.Join(names, ", "))
	}
}
