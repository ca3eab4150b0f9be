// Package adapter wraps the external collaborators of the reconciliation
// core: the smart-contract RPC surface and the content-addressed metadata
// store. All calls carry bounded timeouts and surface failures as
// transient transport errors so the job layer retries them.
package adapter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/splits-indexer/internal/accountid"
)

// DripsContract is the on-chain truth the reconciliation engine checks
// its projection against.
type DripsContract interface {
	// SplitsHash returns the current on-chain receiver-set hash of an account
	SplitsHash(ctx context.Context, account accountid.AccountID) (common.Hash, error)
	// OwnerOf returns the live owner address of an owned account
	OwnerOf(ctx context.Context, account accountid.AccountID) (common.Address, error)
	// CalcAccountID asks the driver for the deterministic account ID of a
	// forge source ("owner/repo")
	CalcAccountID(ctx context.Context, forge uint8, name string) (accountid.AccountID, error)
}

// ContentFetcher resolves a content pointer to the raw document bytes
type ContentFetcher interface {
	Fetch(ctx context.Context, cid string) ([]byte, error)
}
