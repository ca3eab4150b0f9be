// Package splits implements the canonical form of a split-receiver set and
// mirrors the contract's receiver-set hashing, so a locally materialized
// graph can be checked against the on-chain splitsHash value.
package splits

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/splits-indexer/internal/accountid"
)

// Receiver is one claimed receiver of a sender's splits configuration
type Receiver struct {
	AccountID accountid.AccountID
	Weight    uint32
}

// Canonicalize deduplicates by (accountId, weight) and sorts by account ID
// ascending, the input contract of the hash function mirrored from the
// contract. Ties on account ID order by weight so the output is
// deterministic. The input slice is not modified.
func Canonicalize(receivers []Receiver) []Receiver {
	type key struct {
		id     string
		weight uint32
	}
	seen := make(map[key]struct{}, len(receivers))
	out := make([]Receiver, 0, len(receivers))
	for _, r := range receivers {
		k := key{id: r.AccountID.String(), weight: r.Weight}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].AccountID.Cmp(out[j].AccountID); c != 0 {
			return c < 0
		}
		return out[i].Weight < out[j].Weight
	})
	return out
}

var receiversArgs abi.Arguments

func init() {
	receiverTupleArray, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "accountId", Type: "uint256"},
		{Name: "weight", Type: "uint32"},
	})
	if err != nil {
		panic(fmt.Sprintf("splits: building receiver ABI type: %v", err))
	}
	receiversArgs = abi.Arguments{{Type: receiverTupleArray}}
}

type abiReceiver struct {
	AccountId *big.Int
	Weight    uint32
}

// Hash computes keccak256(abi.encode(receivers)) exactly as the contract's
// hashSplits does. The receivers must already be in canonical form. An
// empty set hashes to the zero hash, matching the contract convention.
func Hash(canonical []Receiver) (common.Hash, error) {
	if len(canonical) == 0 {
		return common.Hash{}, nil
	}
	encoded := make([]abiReceiver, len(canonical))
	for i, r := range canonical {
		encoded[i] = abiReceiver{AccountId: r.AccountID.Big(), Weight: r.Weight}
	}
	packed, err := receiversArgs.Pack(encoded)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode receivers: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// HashOf canonicalizes and hashes in one step
func HashOf(receivers []Receiver) (common.Hash, error) {
	return Hash(Canonicalize(receivers))
}
