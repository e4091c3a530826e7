package ssz

import (
	"testing"

	"github.com/protolambda/zrnt/eth2/util/merkle"
	"github.com/stretchr/testify/require"

	"github.com/kysee/zk-lightclient/types"
)

func fieldRoots(n int) []types.Root {
	roots := make([]types.Root, n)
	for i := range roots {
		roots[i] = types.Root{byte(i + 1), 0xee}
	}
	return roots
}

func TestContainerRootMatchesMerkleize(t *testing.T) {
	for _, n := range []int{1, 2, 5, 8, 25} {
		roots := fieldRoots(n)
		require.Equal(t, Merkleize(roots), ContainerFromRoots(roots...).Root(), "fields=%d", n)
	}
}

func TestHeaderContainerMatchesHash(t *testing.T) {
	h := &types.BeaconBlockHeader{Slot: 7, ProposerIndex: 9, BodyRoot: types.Root{0x33}}
	node := ContainerFromRoots(ToLittleEndian(h.Slot), ToLittleEndian(h.ProposerIndex), h.ParentRoot, h.StateRoot, h.BodyRoot)
	require.Equal(t, HashBeaconBlockHeader(h), node.Root())
}

func TestGindex(t *testing.T) {
	require.Equal(t, uint64(55), Gindex(5, 23))
	require.Equal(t, uint64(105), ConcatGindices(Gindex(5, 20), Gindex(1, 1)))
	require.Equal(t, uint64(402), ConcatGindices(Gindex(4, 9), Gindex(4, 2)))
}

func TestNestedBranch(t *testing.T) {
	checkpoint := ContainerFromRoots(ToLittleEndian(100), types.Root{0xcc})
	fields := make([]*Node, 25)
	for i, r := range fieldRoots(25) {
		fields[i] = NewLeaf(r)
	}
	fields[20] = checkpoint
	state := Container(fields...)

	gindex := ConcatGindices(Gindex(5, 20), Gindex(1, 1))
	leaf, err := state.Getter(gindex)
	require.NoError(t, err)
	require.Equal(t, types.Root{0xcc}, leaf.Root())

	branch, err := state.Branch(gindex)
	require.NoError(t, err)
	require.Len(t, branch, 6)
	require.Equal(t, ToLittleEndian(100), branch[0])

	require.True(t, VerifyBranch(leaf.Root(), branch, gindex, state.Root()))
	require.True(t, merkle.VerifyMerkleBranch(leaf.Root(), branch, 6, gindex-64, state.Root()))

	branch[3][0] ^= 0x01
	require.False(t, VerifyBranch(leaf.Root(), branch, gindex, state.Root()))
}

func TestGetterPastLeaf(t *testing.T) {
	state := ContainerFromRoots(fieldRoots(4)...)
	_, err := state.Getter(Gindex(3, 1))
	require.Error(t, err)
	_, err = state.Branch(0)
	require.Error(t, err)
}
