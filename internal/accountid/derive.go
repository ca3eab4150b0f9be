package accountid

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// CalcProjectID mirrors the repo driver's deterministic derivation of a
// project account ID from its forge source:
//
//	(projectTag << 224) | uint224(keccak256(forge || "owner/repo"))
//
// Source verification recomputes this locally and compares it against the
// ID a receiver claims.
func CalcProjectID(forge uint8, name string) AccountID {
	packed := make([]byte, 0, 1+len(name))
	packed = append(packed, forge)
	packed = append(packed, []byte(name)...)
	hash := crypto.Keccak256(packed)
	id, err := MakeID(DriverProject, new(big.Int).SetBytes(hash))
	if err != nil {
		// MakeID only fails on an unknown driver tag.
		panic(err)
	}
	return id
}
