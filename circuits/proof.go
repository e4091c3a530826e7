package circuit

import (
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
)

// SnarkJSProof is the proof.json written by the prover executable.
type SnarkJSProof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
}

// SnarkJSVerificationKey is the verification_key.json exported by snarkjs.
type SnarkJSVerificationKey struct {
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
	NPublic  int        `json:"nPublic"`
	VkAlpha1 []string   `json:"vk_alpha_1"`
	VkBeta2  [][]string `json:"vk_beta_2"`
	VkGamma2 [][]string `json:"vk_gamma_2"`
	VkDelta2 [][]string `json:"vk_delta_2"`
	IC       [][]string `json:"IC"`
}

// Groth16Proof is a proof in the coordinate order of the on-chain verifier.
// B differs from snarkjs by swapping the two limbs of each G2 coordinate.
type Groth16Proof struct {
	A [2]*big.Int    `json:"a"`
	B [2][2]*big.Int `json:"b"`
	C [2]*big.Int    `json:"c"`
}

func ParseSnarkJSProof(data []byte) (*SnarkJSProof, error) {
	var proof SnarkJSProof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("failed to parse proof JSON: %w", err)
	}
	if len(proof.PiA) < 2 || len(proof.PiC) < 2 || len(proof.PiB) < 2 || len(proof.PiB[0]) < 2 || len(proof.PiB[1]) < 2 {
		return nil, fmt.Errorf("proof JSON is missing coordinates")
	}
	return &proof, nil
}

func ReadSnarkJSVerificationKey(path string) (*SnarkJSVerificationKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read verification key: %w", err)
	}
	var vk SnarkJSVerificationKey
	if err := json.Unmarshal(data, &vk); err != nil {
		return nil, fmt.Errorf("failed to parse verification key JSON: %w", err)
	}
	return &vk, nil
}

func parseBigInt(s string) (*big.Int, error) {
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid field element %q", s)
	}
	return bi, nil
}

func parseFp(s string) (fp.Element, error) {
	var e fp.Element
	bi, err := parseBigInt(s)
	if err != nil {
		return e, err
	}
	if bi.Sign() < 0 || bi.Cmp(fp.Modulus()) >= 0 {
		return e, fmt.Errorf("field element %s out of range", s)
	}
	e.SetBigInt(bi)
	return e, nil
}

func parseG1(coords []string) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	if len(coords) < 2 {
		return p, fmt.Errorf("not enough coordinates for G1")
	}
	var err error
	if p.X, err = parseFp(coords[0]); err != nil {
		return p, err
	}
	if p.Y, err = parseFp(coords[1]); err != nil {
		return p, err
	}
	if !p.IsOnCurve() || !p.IsInSubGroup() {
		return p, fmt.Errorf("G1 point is not on BN254")
	}
	return p, nil
}

func parseG2(coords [][]string) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	if len(coords) < 2 || len(coords[0]) < 2 || len(coords[1]) < 2 {
		return p, fmt.Errorf("not enough coordinates for G2")
	}
	var err error
	if p.X.A0, err = parseFp(coords[0][0]); err != nil {
		return p, err
	}
	if p.X.A1, err = parseFp(coords[0][1]); err != nil {
		return p, err
	}
	if p.Y.A0, err = parseFp(coords[1][0]); err != nil {
		return p, err
	}
	if p.Y.A1, err = parseFp(coords[1][1]); err != nil {
		return p, err
	}
	if !p.IsOnCurve() || !p.IsInSubGroup() {
		return p, fmt.Errorf("G2 point is not on BN254")
	}
	return p, nil
}

// ConvertProof validates the snarkjs points and returns the gnark proof.
func ConvertProof(proof *SnarkJSProof) (*groth16_bn254.Proof, error) {
	ar, err := parseG1(proof.PiA)
	if err != nil {
		return nil, fmt.Errorf("failed to convert pi_a: %w", err)
	}
	krs, err := parseG1(proof.PiC)
	if err != nil {
		return nil, fmt.Errorf("failed to convert pi_c: %w", err)
	}
	bs, err := parseG2(proof.PiB)
	if err != nil {
		return nil, fmt.Errorf("failed to convert pi_b: %w", err)
	}
	return &groth16_bn254.Proof{Ar: ar, Krs: krs, Bs: bs}, nil
}

// ToGroth16Proof reorders a snarkjs proof for the contract verifier.
func (p *SnarkJSProof) ToGroth16Proof() (*Groth16Proof, error) {
	coords := []string{
		p.PiA[0], p.PiA[1],
		p.PiB[0][1], p.PiB[0][0], p.PiB[1][1], p.PiB[1][0],
		p.PiC[0], p.PiC[1],
	}
	vals := make([]*big.Int, len(coords))
	for i, s := range coords {
		v, err := parseBigInt(s)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return &Groth16Proof{
		A: [2]*big.Int{vals[0], vals[1]},
		B: [2][2]*big.Int{{vals[2], vals[3]}, {vals[4], vals[5]}},
		C: [2]*big.Int{vals[6], vals[7]},
	}, nil
}

func ConvertVerificationKey(vk *SnarkJSVerificationKey) (*groth16_bn254.VerifyingKey, error) {
	alpha, err := parseG1(vk.VkAlpha1)
	if err != nil {
		return nil, fmt.Errorf("failed to convert vk_alpha_1: %w", err)
	}
	beta, err := parseG2(vk.VkBeta2)
	if err != nil {
		return nil, fmt.Errorf("failed to convert vk_beta_2: %w", err)
	}
	gamma, err := parseG2(vk.VkGamma2)
	if err != nil {
		return nil, fmt.Errorf("failed to convert vk_gamma_2: %w", err)
	}
	delta, err := parseG2(vk.VkDelta2)
	if err != nil {
		return nil, fmt.Errorf("failed to convert vk_delta_2: %w", err)
	}
	k := make([]bn254.G1Affine, len(vk.IC))
	for i, ic := range vk.IC {
		if k[i], err = parseG1(ic); err != nil {
			return nil, fmt.Errorf("failed to convert IC[%d]: %w", i, err)
		}
	}

	out := &groth16_bn254.VerifyingKey{}
	out.G1.Alpha = alpha
	out.G1.K = k
	out.G2.Beta = beta
	out.G2.Gamma = gamma
	out.G2.Delta = delta
	if err := out.Precompute(); err != nil {
		return nil, fmt.Errorf("failed to precompute verification key: %w", err)
	}
	return out, nil
}

// VerifyProof checks a converted proof against the public signals.
func VerifyProof(proof *groth16_bn254.Proof, vk *groth16_bn254.VerifyingKey, publicSignals []*big.Int) error {
	inputs := make(fr.Vector, len(publicSignals))
	for i, s := range publicSignals {
		inputs[i].SetBigInt(s)
	}
	return groth16_bn254.Verify(proof, vk, inputs)
}
