package types

import (
	"errors"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/prysmaticlabs/go-bitfield"
)

// SignatureDST is the ciphersuite tag used by beacon-chain BLS signatures.
var SignatureDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

var ErrSignatureInvalid = errors.New("sync aggregate signature verification failed")

func (b SyncCommitteeBits) Bitvector() bitfield.Bitvector512 {
	bv := bitfield.NewBitvector512()
	copy(bv, b[:])
	return bv
}

// Participation is the number of committee members that signed.
func (b SyncCommitteeBits) Participation() uint64 {
	return b.Bitvector().Count()
}

func ParseSyncCommitteeBits(bits SyncCommitteeBits) []bool {
	bv := bits.Bitvector()
	out := make([]bool, SyncCommitteeSize)
	for i := range out {
		out[i] = bv.BitAt(uint64(i))
	}
	return out
}

// AggregatePublicKeys sums the G1 keys of every participating member.
func AggregatePublicKeys(pubkeys []BLSPubkey, bits []bool) (bls12381.G1Affine, int, error) {
	var aggPubkey bls12381.G1Affine
	aggPubkey.SetInfinity()

	count := 0
	for i, participate := range bits {
		if !participate || i >= len(pubkeys) {
			continue
		}
		var pubkey bls12381.G1Affine
		if _, err := pubkey.SetBytes(pubkeys[i][:]); err != nil {
			return aggPubkey, 0, fmt.Errorf("failed to deserialize pubkey %d: %w", i, err)
		}
		aggPubkey.Add(&aggPubkey, &pubkey)
		count++
	}

	if count == 0 {
		return aggPubkey, 0, fmt.Errorf("no public keys to aggregate")
	}
	return aggPubkey, count, nil
}

// VerifySyncAggregate checks e(aggPubkey, H(signingRoot)) == e(G1, signature).
func VerifySyncAggregate(committee *SyncCommittee, aggregate *SyncAggregate, signingRoot Root) error {
	bits := ParseSyncCommitteeBits(aggregate.SyncCommitteeBits)
	aggPubkey, _, err := AggregatePublicKeys(committee.Pubkeys[:], bits)
	if err != nil {
		return fmt.Errorf("failed to aggregate public keys: %w", err)
	}

	var signature bls12381.G2Affine
	if _, err := signature.SetBytes(aggregate.SyncCommitteeSignature[:]); err != nil {
		return fmt.Errorf("failed to deserialize signature: %w", err)
	}

	messageHash, err := bls12381.HashToG2(signingRoot[:], SignatureDST)
	if err != nil {
		return fmt.Errorf("failed to hash to G2: %w", err)
	}

	_, _, g1Gen, _ := bls12381.Generators()
	var negG1 bls12381.G1Affine
	negG1.Neg(&g1Gen)

	valid, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{aggPubkey, negG1},
		[]bls12381.G2Affine{messageHash, signature},
	)
	if err != nil {
		return fmt.Errorf("pairing check error: %w", err)
	}
	if !valid {
		return ErrSignatureInvalid
	}
	return nil
}
