// Package ssz holds the SHA-256 Merkleization helpers shared by the consensus
// client and the circuit encoders.
package ssz

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/protolambda/ztyp/tree"

	"github.com/kysee/zk-lightclient/types"
)

var hFn = tree.GetHashFn()

// HashPair returns sha256(a || b).
func HashPair(a, b types.Root) types.Root {
	return hFn(a, b)
}

// RootFromBytes converts a digest into a Root. A digest of any length other than
// 32 is a programming error.
func RootFromBytes(bz []byte) types.Root {
	if len(bz) != 32 {
		panic(&types.InvariantViolation{What: fmt.Sprintf("digest has %d bytes, expected 32", len(bz))})
	}
	var r types.Root
	copy(r[:], bz)
	return r
}

// ToLittleEndian packs v into the first 8 bytes of a zeroed chunk.
func ToLittleEndian(v uint64) types.Root {
	var r types.Root
	binary.LittleEndian.PutUint64(r[:8], v)
	return r
}

// ToLittleEndianFromBigInt packs a non-negative integer below 2^256 little-endian.
func ToLittleEndianFromBigInt(v *big.Int) types.Root {
	if v.Sign() < 0 || v.BitLen() > 256 {
		panic(&types.InvariantViolation{What: fmt.Sprintf("integer %s does not fit in 32 bytes", v)})
	}
	var be [32]byte
	v.FillBytes(be[:])
	var r types.Root
	for i := 0; i < 32; i++ {
		r[i] = be[31-i]
	}
	return r
}

// ToBigIntFromBytes32 reads r as a big-endian integer.
func ToBigIntFromBytes32(r types.Root) *big.Int {
	return new(big.Int).SetBytes(r[:])
}

var mask253 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 253), big.NewInt(1))

// Mask253 keeps the low 253 bits so the value fits the BN254 scalar field.
func Mask253(v *big.Int) *big.Int {
	return new(big.Int).And(v, mask253)
}

// HashBeaconBlockHeader is hash_tree_root(BeaconBlockHeader).
func HashBeaconBlockHeader(h *types.BeaconBlockHeader) types.Root {
	return Merkleize([]types.Root{
		ToLittleEndian(h.Slot),
		ToLittleEndian(h.ProposerIndex),
		h.ParentRoot,
		h.StateRoot,
		h.BodyRoot,
	})
}

// HashPubkey packs a 48-byte key into two chunks and hashes them.
func HashPubkey(pk types.BLSPubkey) types.Root {
	var lo, hi types.Root
	copy(lo[:], pk[:32])
	copy(hi[:], pk[32:])
	return HashPair(lo, hi)
}

// HashSyncCommittee is hash_tree_root(SyncCommittee).
func HashSyncCommittee(c *types.SyncCommittee) types.Root {
	leaves := make([]types.Root, len(c.Pubkeys))
	for i, pk := range c.Pubkeys {
		leaves[i] = HashPubkey(pk)
	}
	return HashPair(Merkleize(leaves), HashPubkey(c.AggregatePubkey))
}

// ComputeBitSum counts the participants in a sync aggregate.
func ComputeBitSum(bits types.SyncCommitteeBits) uint64 {
	return bits.Participation()
}

// ComputeDomain is the sync committee signature domain:
// DOMAIN_SYNC_COMMITTEE || hash_tree_root(ForkData)[:28].
func ComputeDomain(version types.Version, genesisValidatorsRoot types.Root) types.Root {
	var versionChunk types.Root
	copy(versionChunk[:4], version[:])
	forkDataRoot := HashPair(versionChunk, genesisValidatorsRoot)

	var domain types.Root
	copy(domain[:4], types.DomainSyncCommittee[:])
	copy(domain[4:], forkDataRoot[:28])
	return domain
}

func ComputeSigningRoot(root, domain types.Root) types.Root {
	return HashPair(root, domain)
}

// Merkleize hashes leaves into a root, padding with zero chunks to the next
// power of two.
func Merkleize(leaves []types.Root) types.Root {
	if len(leaves) == 0 {
		return types.Root{}
	}
	depth := tree.CoverDepth(uint64(len(leaves)))
	level := append([]types.Root(nil), leaves...)
	for d := uint8(0); d < depth; d++ {
		if len(level)%2 == 1 {
			level = append(level, tree.ZeroHashes[d])
		}
		next := make([]types.Root, len(level)/2)
		for i := range next {
			next[i] = HashPair(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}
