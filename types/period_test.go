package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeriodBoundaries(t *testing.T) {
	require.Equal(t, uint64(0), Period(0))
	require.Equal(t, uint64(0), Period(8191))
	require.Equal(t, uint64(1), Period(8192))
	require.Equal(t, uint64(1), Period(16383))
	require.Equal(t, uint64(2), Period(16384))
}

func TestHasQuorum(t *testing.T) {
	require.True(t, HasQuorum(342))
	require.False(t, HasQuorum(341))
	require.False(t, HasQuorum(0))
	require.True(t, HasQuorum(SyncCommitteeSize))
}

func TestSyncCommitteeBitsParticipation(t *testing.T) {
	var bits SyncCommitteeBits
	require.Equal(t, uint64(0), bits.Participation())

	bits[0] = 0x01  // member 0
	bits[1] = 0x80  // member 15
	bits[63] = 0x80 // member 511
	require.Equal(t, uint64(3), bits.Participation())

	parsed := ParseSyncCommitteeBits(bits)
	require.True(t, parsed[0])
	require.False(t, parsed[1])
	require.True(t, parsed[15])
	require.True(t, parsed[511])

	for i := range bits {
		bits[i] = 0xff
	}
	require.Equal(t, uint64(SyncCommitteeSize), bits.Participation())
}

func TestSyncCommitteeBitsText(t *testing.T) {
	var bits SyncCommitteeBits
	bits[2] = 0xab
	text, err := bits.MarshalText()
	require.NoError(t, err)

	var decoded SyncCommitteeBits
	require.NoError(t, decoded.UnmarshalText(text))
	require.Equal(t, bits, decoded)

	require.Error(t, decoded.UnmarshalText([]byte("0x")))
}

func TestTelepathyUpdateValidate(t *testing.T) {
	u := &TelepathyUpdate{
		FinalityBranch:          make([]Root, FinalityBranchDepth),
		NextSyncCommitteeBranch: make([]Root, SyncCommitteeBranchDepth),
		ExecutionStateBranch:    make([]Root, ExecutionStateBranchDepth),
	}
	require.NoError(t, u.Validate())

	u.FinalityBranch = u.FinalityBranch[:5]
	var iv *InvariantViolation
	require.ErrorAs(t, u.Validate(), &iv)
}
