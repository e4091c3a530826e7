package ssz

import (
	"math/big"
	"testing"

	zrntcommon "github.com/protolambda/zrnt/eth2/beacon/common"
	"github.com/protolambda/zrnt/eth2/configs"
	"github.com/protolambda/ztyp/tree"
	"github.com/stretchr/testify/require"

	"github.com/kysee/zk-lightclient/types"
)

func testCommittee(seed byte) *types.SyncCommittee {
	c := &types.SyncCommittee{}
	for i := range c.Pubkeys {
		c.Pubkeys[i][0] = seed
		c.Pubkeys[i][1] = byte(i)
		c.Pubkeys[i][2] = byte(i >> 8)
		c.Pubkeys[i][47] = 0xaa
	}
	c.AggregatePubkey[0] = seed
	c.AggregatePubkey[47] = 0x55
	return c
}

func TestHashBeaconBlockHeaderMatchesZRNT(t *testing.T) {
	h := &types.BeaconBlockHeader{
		Slot:          4_915_200,
		ProposerIndex: 123_456,
		ParentRoot:    types.Root{0x01},
		StateRoot:     types.Root{0x02},
		BodyRoot:      types.Root{0x03},
	}
	require.Equal(t, h.ZRNT().HashTreeRoot(tree.GetHashFn()), HashBeaconBlockHeader(h))
}

func TestHashSyncCommitteeMatchesZRNT(t *testing.T) {
	c := testCommittee(0x80)

	zc := &zrntcommon.SyncCommittee{
		Pubkeys:         make([]zrntcommon.BLSPubkey, len(c.Pubkeys)),
		AggregatePubkey: c.AggregatePubkey,
	}
	copy(zc.Pubkeys, c.Pubkeys[:])

	require.Equal(t, zc.HashTreeRoot(configs.Mainnet, tree.GetHashFn()), HashSyncCommittee(c))
}

func TestHashSyncCommitteeDeterministicAndInjective(t *testing.T) {
	a := testCommittee(0x01)
	require.Equal(t, HashSyncCommittee(a), HashSyncCommittee(testCommittee(0x01)))

	b := testCommittee(0x01)
	b.Pubkeys[511][47] ^= 0x01
	require.NotEqual(t, HashSyncCommittee(a), HashSyncCommittee(b))

	c := testCommittee(0x01)
	c.AggregatePubkey[10] = 0x10
	require.NotEqual(t, HashSyncCommittee(a), HashSyncCommittee(c))
}

func TestComputeDomainMatchesZRNT(t *testing.T) {
	version := types.Version{0x02, 0x00, 0x00, 0x00}
	gvr := types.Root{0x4b, 0x36, 0x3d, 0xb9}

	expected := zrntcommon.ComputeDomain(zrntcommon.BLSDomainType{0x07, 0x00, 0x00, 0x00}, version, gvr)
	domain := ComputeDomain(version, gvr)
	require.Equal(t, types.Root(expected), domain)

	headerRoot := types.Root{0x42}
	require.Equal(t, zrntcommon.ComputeSigningRoot(headerRoot, expected), ComputeSigningRoot(headerRoot, domain))
}

func TestComputeBitSumBounds(t *testing.T) {
	var bits types.SyncCommitteeBits
	require.Equal(t, uint64(0), ComputeBitSum(bits))
	bits[5] = 0x03
	require.Equal(t, uint64(2), ComputeBitSum(bits))
	for i := range bits {
		bits[i] = 0xff
	}
	require.Equal(t, uint64(512), ComputeBitSum(bits))
}

func TestLittleEndianAndMask(t *testing.T) {
	le := ToLittleEndian(0x0102)
	require.Equal(t, byte(0x02), le[0])
	require.Equal(t, byte(0x01), le[1])
	require.Equal(t, le, ToLittleEndianFromBigInt(big.NewInt(0x0102)))

	var ones types.Root
	for i := range ones {
		ones[i] = 0xff
	}
	masked := Mask253(ToBigIntFromBytes32(ones))
	require.Equal(t, 253, masked.BitLen())

	require.Panics(t, func() { RootFromBytes(make([]byte, 31)) })
}
