package circuit

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/kysee/zk-lightclient/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

// generatorProof returns a snarkjs proof JSON built from the BN254 generators.
func generatorProof() string {
	_, _, g1, g2 := bn254.Generators()
	s := func(x interface{ BigInt(*big.Int) *big.Int }) string {
		return x.BigInt(new(big.Int)).String()
	}
	return fmt.Sprintf(`{"pi_a":["%s","%s","1"],"pi_b":[["%s","%s"],["%s","%s"],["1","0"]],"pi_c":["%s","%s","1"],"protocol":"groth16","curve":"bn128"}`,
		s(&g1.X), s(&g1.Y),
		s(&g2.X.A0), s(&g2.X.A1), s(&g2.Y.A0), s(&g2.Y.A1),
		s(&g1.X), s(&g1.Y))
}

func TestDriverUnsetPaths(t *testing.T) {
	d, err := NewDriver("step", Config{}, t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = d.CalculateWitness(context.Background(), NewInput())
	var pe *types.ExternalProcessError
	require.ErrorAs(t, err, &pe)
	require.ErrorIs(t, err, errPathNotSet)

	_, err = d.Prove(context.Background(), &Witness{Path: "w"})
	require.ErrorAs(t, err, &pe)

	d.Config.ProverExecutablePath = "/bin/true"
	_, err = d.Prove(context.Background(), &Witness{Path: "w"})
	require.ErrorAs(t, err, &pe)
}

func TestDriverFailingExecutable(t *testing.T) {
	dir := t.TempDir()
	witness := writeScript(t, dir, "witness.sh", "echo boom >&2\nexit 3")

	d, err := NewDriver("step", Config{WitnessExecutablePath: witness}, dir, zerolog.Nop())
	require.NoError(t, err)
	_, err = d.CalculateWitness(context.Background(), NewInput())
	var pe *types.ExternalProcessError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, witness, pe.Executable)
	require.Contains(t, pe.Output, "boom")
}

func TestDriverProve(t *testing.T) {
	dir := t.TempDir()
	proofSrc := filepath.Join(dir, "fixture_proof.json")
	require.NoError(t, os.WriteFile(proofSrc, []byte(generatorProof()), 0644))

	cfg := Config{
		WitnessExecutablePath: writeScript(t, dir, "witness.sh", `cp "$1" "$2"`),
		ProverExecutablePath:  writeScript(t, dir, "prover.sh", fmt.Sprintf(`cp %q "$3"`, proofSrc)),
		ProverKeyPath:         filepath.Join(dir, "step.zkey"),
	}
	d, err := NewDriver("step", cfg, filepath.Join(dir, "work"), zerolog.Nop())
	require.NoError(t, err)

	in := NewInput()
	require.NoError(t, in.WriteBigInt("publicInputsRoot", big.NewInt(5)))
	w, err := d.CalculateWitness(context.Background(), in)
	require.NoError(t, err)

	// The fake witness generator copies its input through.
	blob, err := os.ReadFile(w.Path)
	require.NoError(t, err)
	require.JSONEq(t, `{"publicInputsRoot":"5"}`, string(blob))

	proof, err := d.Prove(context.Background(), w)
	require.NoError(t, err)

	_, _, g1, g2 := bn254.Generators()
	require.Equal(t, g1.X.BigInt(new(big.Int)).String(), proof.A[0].String())
	require.Equal(t, g2.X.A1.BigInt(new(big.Int)).String(), proof.B[0][0].String())
	require.Equal(t, g2.X.A0.BigInt(new(big.Int)).String(), proof.B[0][1].String())
	require.Equal(t, g2.Y.A1.BigInt(new(big.Int)).String(), proof.B[1][0].String())
	require.Equal(t, g1.Y.BigInt(new(big.Int)).String(), proof.C[1].String())
}

func TestConvertProofRejectsPointOffCurve(t *testing.T) {
	proof, err := ParseSnarkJSProof([]byte(generatorProof()))
	require.NoError(t, err)
	_, err = ConvertProof(proof)
	require.NoError(t, err)

	proof.PiA[1] = "3"
	_, err = ConvertProof(proof)
	require.Error(t, err)

	_, err = ParseSnarkJSProof([]byte(`{"pi_a":["1"],"pi_b":[],"pi_c":[]}`))
	require.Error(t, err)
}
