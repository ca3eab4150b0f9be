package accountid

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splits-indexer/internal/indexererr"
)

func idWithDriver(t *testing.T, driver DriverKind, payload int64) AccountID {
	t.Helper()
	id, err := MakeID(driver, big.NewInt(payload))
	require.NoError(t, err)
	return id
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		driver DriverKind
	}{
		{"address", DriverAddress},
		{"dripList", DriverDripList},
		{"subList", DriverSubList},
		{"project", DriverProject},
		{"linkedIdentity", DriverLinkedIdentity},
		{"ecosystemMainAccount", DriverEcosystem},
		{"deadline", DriverDeadline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := idWithDriver(t, tt.driver, 12345)
			kind, err := Classify(id.Big())
			require.NoError(t, err)
			assert.Equal(t, tt.driver, kind)
			assert.Equal(t, tt.name, kind.String())
		})
	}
}

func TestClassifyRejectsUnknownTag(t *testing.T) {
	v := new(big.Int).Lsh(big.NewInt(99), 224)
	_, err := Classify(v)
	require.Error(t, err)
	assert.True(t, indexererr.IsValidation(err))
}

func TestClassifyRejectsOutOfRange(t *testing.T) {
	_, err := Classify(big.NewInt(-1))
	require.Error(t, err)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = Classify(tooBig)
	require.Error(t, err)

	_, err = Classify(nil)
	require.Error(t, err)
}

func TestAsAddress(t *testing.T) {
	addr := common.HexToAddress("0x8e989043b9abd895361eb874b10abee5c612a504")
	id := FromAddress(addr)

	assert.Equal(t, DriverAddress, id.Driver())

	got, err := id.AsAddress()
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}

func TestAsAddressRejectsReservedBits(t *testing.T) {
	// Address-driver ID with a stray bit in the reserved 64-bit gap.
	v := new(big.Int).Lsh(big.NewInt(1), 170)
	id, err := FromBig(v)
	require.NoError(t, err)
	require.Equal(t, DriverAddress, id.Driver())

	_, err = id.AsAddress()
	require.Error(t, err)
	assert.True(t, indexererr.IsValidation(err))
}

func TestAsAddressRejectsWrongDriver(t *testing.T) {
	id := idWithDriver(t, DriverProject, 777)
	_, err := id.AsAddress()
	require.Error(t, err)
	assert.True(t, indexererr.IsValidation(err))
}

func TestAssertGuards(t *testing.T) {
	project := idWithDriver(t, DriverProject, 1)
	dripList := idWithDriver(t, DriverDripList, 2)

	assert.NoError(t, project.AssertProject())
	assert.Error(t, project.AssertDripList())
	assert.NoError(t, dripList.AssertDripList())
	assert.Error(t, dripList.AssertDeadline())
	assert.Error(t, dripList.AssertSubList())
	assert.Error(t, dripList.AssertLinkedIdentity())
	assert.Error(t, dripList.AssertEcosystem())
}

func TestFromDecimal(t *testing.T) {
	id := idWithDriver(t, DriverDripList, 42)

	parsed, err := FromDecimal(id.String())
	require.NoError(t, err)
	assert.Equal(t, 0, parsed.Cmp(id))

	_, err = FromDecimal("not-a-number")
	require.Error(t, err)

	_, err = FromDecimal("0x1234")
	require.Error(t, err)
}

func TestMakeIDMasksPayload(t *testing.T) {
	// Payload wider than 224 bits must not bleed into the driver tag.
	payload := new(big.Int).Lsh(big.NewInt(7), 230)
	id, err := MakeID(DriverProject, payload)
	require.NoError(t, err)
	assert.Equal(t, DriverProject, id.Driver())
}
