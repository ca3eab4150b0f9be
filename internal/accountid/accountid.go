// Package accountid implements the driver-typed account identifier space.
// An account ID is an unsigned 256-bit integer whose top 32 bits select the
// driver that minted it; the remaining 224 bits are a per-driver payload.
package accountid

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/splits-indexer/internal/indexererr"
)

// DriverKind identifies the driver that minted an account ID
type DriverKind uint32

const (
	// DriverAddress accounts embed a literal 160-bit wallet address
	DriverAddress DriverKind = 0
	// DriverDripList accounts are NFT-driver drip lists
	DriverDripList DriverKind = 1
	// DriverSubList accounts are immutable sub-lists of a list tree
	DriverSubList DriverKind = 2
	// DriverProject accounts derive from a forge source (forge, owner/repo)
	DriverProject DriverKind = 3
	// DriverLinkedIdentity accounts bind an external identity to an owner
	DriverLinkedIdentity DriverKind = 4
	// DriverEcosystem accounts are ecosystem main accounts
	DriverEcosystem DriverKind = 5
	// DriverDeadline accounts are time-boxed claim accounts
	DriverDeadline DriverKind = 6
)

// String returns a human-readable driver name
func (d DriverKind) String() string {
	switch d {
	case DriverAddress:
		return "address"
	case DriverDripList:
		return "dripList"
	case DriverSubList:
		return "subList"
	case DriverProject:
		return "project"
	case DriverLinkedIdentity:
		return "linkedIdentity"
	case DriverEcosystem:
		return "ecosystemMainAccount"
	case DriverDeadline:
		return "deadline"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(d))
	}
}

func (d DriverKind) known() bool {
	return d <= DriverDeadline
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// AccountID is an immutable, validated 256-bit account identifier
type AccountID struct {
	b [32]byte
}

// FromBig validates and converts a big integer into an AccountID
func FromBig(v *big.Int) (AccountID, error) {
	if v == nil {
		return AccountID{}, indexererr.Validation("INVALID_ACCOUNT_ID", "account ID is nil")
	}
	if v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return AccountID{}, indexererr.Validation("INVALID_ACCOUNT_ID", "account ID out of uint256 range: %s", v.String())
	}
	var id AccountID
	v.FillBytes(id.b[:])
	if !id.Driver().known() {
		return AccountID{}, indexererr.Validation("UNKNOWN_DRIVER", "account ID %s has unknown driver tag %d", v.String(), uint32(id.Driver()))
	}
	return id, nil
}

// FromDecimal parses a decimal string into an AccountID
func FromDecimal(s string) (AccountID, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return AccountID{}, indexererr.Validation("INVALID_ACCOUNT_ID", "not a decimal account ID: %q", s)
	}
	return FromBig(v)
}

// MustFromDecimal parses a decimal string, panicking on error. Test helper.
func MustFromDecimal(s string) AccountID {
	id, err := FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromAddress builds the address-driver account ID embedding addr
func FromAddress(addr common.Address) AccountID {
	var id AccountID
	copy(id.b[12:], addr.Bytes())
	return id
}

// MakeID builds an account ID from a driver tag and a 224-bit payload.
// The top 32 bits of payload are discarded.
func MakeID(driver DriverKind, payload *big.Int) (AccountID, error) {
	if !driver.known() {
		return AccountID{}, indexererr.Validation("UNKNOWN_DRIVER", "unknown driver tag %d", uint32(driver))
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1))
	v := new(big.Int).And(payload, mask)
	v.Or(v, new(big.Int).Lsh(big.NewInt(int64(driver)), 224))
	return FromBig(v)
}

// Driver returns the driver tag encoded in the top 32 bits
func (id AccountID) Driver() DriverKind {
	return DriverKind(uint32(id.b[0])<<24 | uint32(id.b[1])<<16 | uint32(id.b[2])<<8 | uint32(id.b[3]))
}

// Big returns the ID as a fresh big integer
func (id AccountID) Big() *big.Int {
	return new(big.Int).SetBytes(id.b[:])
}

// String returns the canonical decimal form
func (id AccountID) String() string {
	return id.Big().String()
}

// Cmp compares two IDs numerically
func (id AccountID) Cmp(other AccountID) int {
	return id.Big().Cmp(other.Big())
}

// IsZero reports whether the ID is the zero value
func (id AccountID) IsZero() bool {
	return id.b == [32]byte{}
}

// AsAddress recovers the literal wallet address embedded in an
// address-driver ID. The 64 reserved bits between the driver tag and the
// address payload must be zero.
func (id AccountID) AsAddress() (common.Address, error) {
	if id.Driver() != DriverAddress {
		return common.Address{}, wrongDriver(id, DriverAddress)
	}
	for _, b := range id.b[4:12] {
		if b != 0 {
			return common.Address{}, indexererr.Validation("RESERVED_BITS_SET",
				"address-driver ID %s has non-zero reserved bits", id.String())
		}
	}
	return common.BytesToAddress(id.b[12:]), nil
}

// AssertDriver fails with a domain error unless the ID carries the given tag
func (id AccountID) AssertDriver(want DriverKind) error {
	if id.Driver() != want {
		return wrongDriver(id, want)
	}
	return nil
}

// AssertProject fails unless the ID is a project-driver ID
func (id AccountID) AssertProject() error { return id.AssertDriver(DriverProject) }

// AssertDripList fails unless the ID is a drip-list-driver ID
func (id AccountID) AssertDripList() error { return id.AssertDriver(DriverDripList) }

// AssertSubList fails unless the ID is a sub-list-driver ID
func (id AccountID) AssertSubList() error { return id.AssertDriver(DriverSubList) }

// AssertLinkedIdentity fails unless the ID is a linked-identity-driver ID
func (id AccountID) AssertLinkedIdentity() error { return id.AssertDriver(DriverLinkedIdentity) }

// AssertEcosystem fails unless the ID is an ecosystem-driver ID
func (id AccountID) AssertEcosystem() error { return id.AssertDriver(DriverEcosystem) }

// AssertDeadline fails unless the ID is a deadline-driver ID
func (id AccountID) AssertDeadline() error { return id.AssertDriver(DriverDeadline) }

func wrongDriver(id AccountID, want DriverKind) error {
	return indexererr.Validation("WRONG_DRIVER",
		"account ID %s is a %s account, want %s", id.String(), id.Driver(), want)
}

// Classify returns the driver kind of a raw integer account ID,
// rejecting out-of-range values and unknown tags.
func Classify(v *big.Int) (DriverKind, error) {
	id, err := FromBig(v)
	if err != nil {
		return 0, err
	}
	return id.Driver(), nil
}
