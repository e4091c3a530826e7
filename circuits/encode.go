package circuit

import (
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
	"github.com/kysee/zk-lightclient/ssz"
	"github.com/kysee/zk-lightclient/types"
)

const (
	LimbBits  = 55
	LimbCount = 7
)

var limbMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), LimbBits), big.NewInt(1))

// splitLimbs returns the LimbCount little-endian limbs of v.
func splitLimbs(v *big.Int) []*big.Int {
	limbs := make([]*big.Int, LimbCount)
	rest := new(big.Int).Set(v)
	for i := range limbs {
		limbs[i] = new(big.Int).And(rest, limbMask)
		rest.Rsh(rest, LimbBits)
	}
	return limbs
}

// G1PointToBigInt encodes the 48 raw bytes of a public key, read as a
// big-endian integer, as 7 limbs of 55 bits (least significant first).
func G1PointToBigInt(pubkey types.BLSPubkey) []*big.Int {
	return splitLimbs(new(big.Int).SetBytes(pubkey[:]))
}

// BigIntToG1Point is the inverse of G1PointToBigInt.
func BigIntToG1Point(limbs []*big.Int) (types.BLSPubkey, error) {
	var pk types.BLSPubkey
	if len(limbs) != LimbCount {
		return pk, fmt.Errorf("expected %d limbs, got %d", LimbCount, len(limbs))
	}
	v := new(big.Int)
	for i := LimbCount - 1; i >= 0; i-- {
		l := limbs[i]
		if l == nil || l.Sign() < 0 || l.BitLen() > LimbBits {
			return pk, fmt.Errorf("limb %d out of range", i)
		}
		v.Lsh(v, LimbBits)
		v.Or(v, l)
	}
	if v.BitLen() > 8*len(pk) {
		return pk, fmt.Errorf("value exceeds %d bytes", len(pk))
	}
	v.FillBytes(pk[:])
	return pk, nil
}

func fpToLimbs(e *fp.Element) []*big.Int {
	return splitLimbs(e.BigInt(new(big.Int)))
}

// G2PointToBigInt decompresses a signature and returns its affine
// coordinates as [[x.c0, x.c1], [y.c0, y.c1]] in limbs.
func G2PointToBigInt(signature types.BLSSignature) ([2][2][]*big.Int, error) {
	var out [2][2][]*big.Int
	var p bls12381.G2Affine
	if _, err := p.SetBytes(signature[:]); err != nil {
		return out, fmt.Errorf("failed to decompress signature: %w", err)
	}
	out[0] = [2][]*big.Int{fpToLimbs(&p.X.A0), fpToLimbs(&p.X.A1)}
	out[1] = [2][]*big.Int{fpToLimbs(&p.Y.A0), fpToLimbs(&p.Y.A1)}
	return out, nil
}

// ComputePublicInputsRoot commits to the step public inputs. The contract
// recomputes the same chain of hashes and compares the 253-bit truncation.
func ComputePublicInputsRoot(finalizedSlot uint64, finalizedHeaderRoot types.Root, participation uint64, executionStateRoot types.Root, syncCommitteePoseidon *big.Int) *big.Int {
	h := ssz.HashPair(ssz.ToLittleEndian(finalizedSlot), finalizedHeaderRoot)
	h = ssz.HashPair(h, ssz.ToLittleEndian(participation))
	h = ssz.HashPair(h, executionStateRoot)
	h = ssz.HashPair(h, ssz.ToLittleEndianFromBigInt(syncCommitteePoseidon))
	return ssz.Mask253(ssz.ToBigIntFromBytes32(h))
}
