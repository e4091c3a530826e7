package circuit

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/kysee/zk-lightclient/ssz"
	"github.com/kysee/zk-lightclient/types"
)

// PoseidonSyncCommittee commits to a committee's keys: each leaf is the
// Poseidon hash of the key's limbs and the leaves are folded pairwise with
// Poseidon up to a single root.
func PoseidonSyncCommittee(pubkeys []types.BLSPubkey) (*big.Int, error) {
	n := len(pubkeys)
	if n == 0 || n&(n-1) != 0 {
		return nil, &types.InvariantViolation{What: fmt.Sprintf("poseidon commitment over %d keys, need a power of two", n)}
	}

	level := make([]*big.Int, n)
	for i, pk := range pubkeys {
		leaf, err := poseidon.Hash(G1PointToBigInt(pk))
		if err != nil {
			return nil, fmt.Errorf("poseidon leaf %d: %w", i, err)
		}
		level[i] = leaf
	}

	for len(level) > 1 {
		next := make([]*big.Int, len(level)/2)
		for i := range next {
			h, err := poseidon.Hash([]*big.Int{level[2*i], level[2*i+1]})
			if err != nil {
				return nil, fmt.Errorf("poseidon node: %w", err)
			}
			next[i] = h
		}
		level = next
	}
	return level[0], nil
}

// PoseidonCommitment is the 32-byte little-endian form stored by the contract.
func PoseidonCommitment(v *big.Int) types.Root {
	return ssz.ToLittleEndianFromBigInt(v)
}
