package circuit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"

	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/kysee/zk-lightclient/types"
	"github.com/rs/zerolog"
)

var errPathNotSet = errors.New("path is not set")

// Config locates the external witness generator and prover of one circuit.
type Config struct {
	WitnessExecutablePath string `toml:"witnessExecutablePath"`
	ProverExecutablePath  string `toml:"proverExecutablePath"`
	ProverKeyPath         string `toml:"proverKeyPath"`

	// Optional local verification before submission.
	VerifyingKeyPath string   `toml:"verifyingKeyPath"`
	PublicSignals    []string `toml:"publicSignals"`
}

// Witness is a witness file produced from an input.
type Witness struct {
	Path  string
	Input *Input
}

// Circuit turns a consensus snapshot into a proof.
type Circuit interface {
	CalculateInputs(update *types.TelepathyUpdate) (*Input, error)
	CalculateWitness(ctx context.Context, input *Input) (*Witness, error)
	Prove(ctx context.Context, witness *Witness) (*Groth16Proof, error)
}

// Driver runs the external executables of a circuit inside WorkDir.
type Driver struct {
	Name    string
	Config  Config
	WorkDir string

	vk  *groth16_bn254.VerifyingKey
	log zerolog.Logger
}

func NewDriver(name string, cfg Config, workDir string, logger zerolog.Logger) (*Driver, error) {
	d := &Driver{
		Name:    name,
		Config:  cfg,
		WorkDir: workDir,
		log:     logger.With().Str("component", "circuit").Str("circuit", name).Logger(),
	}
	if cfg.VerifyingKeyPath != "" {
		snarkVk, err := ReadSnarkJSVerificationKey(cfg.VerifyingKeyPath)
		if err != nil {
			return nil, err
		}
		if snarkVk.NPublic != 0 && snarkVk.NPublic != len(cfg.PublicSignals) {
			return nil, fmt.Errorf("%s verification key expects %d public signals, %d configured", name, snarkVk.NPublic, len(cfg.PublicSignals))
		}
		if d.vk, err = ConvertVerificationKey(snarkVk); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Driver) path(suffix string) string {
	return filepath.Join(d.WorkDir, d.Name+suffix)
}

func (d *Driver) run(ctx context.Context, executable string, args ...string) error {
	if executable == "" {
		return &types.ExternalProcessError{Executable: d.Name, Err: errPathNotSet}
	}
	d.log.Debug().Str("executable", executable).Strs("args", args).Msg("running")
	out, err := exec.CommandContext(ctx, executable, args...).CombinedOutput()
	if err != nil {
		return &types.ExternalProcessError{Executable: executable, Output: string(out), Err: err}
	}
	return nil
}

// CalculateWitness writes the input JSON and runs the witness generator.
func (d *Driver) CalculateWitness(ctx context.Context, input *Input) (*Witness, error) {
	if d.Config.WitnessExecutablePath == "" {
		return nil, &types.ExternalProcessError{Executable: d.Name + " witness", Err: errPathNotSet}
	}
	if err := os.MkdirAll(d.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	blob, err := input.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal circuit input: %w", err)
	}
	inputPath := d.path("_input.json")
	if err := os.WriteFile(inputPath, blob, 0644); err != nil {
		return nil, fmt.Errorf("failed to write circuit input: %w", err)
	}

	witnessPath := d.path(".wtns")
	if err := d.run(ctx, d.Config.WitnessExecutablePath, inputPath, witnessPath); err != nil {
		return nil, err
	}
	d.log.Info().Str("witness", witnessPath).Msg("witness calculated")
	return &Witness{Path: witnessPath, Input: input}, nil
}

// Prove runs the prover over a witness, validates the resulting proof and,
// when a verifying key is configured, verifies it locally.
func (d *Driver) Prove(ctx context.Context, witness *Witness) (*Groth16Proof, error) {
	if d.Config.ProverExecutablePath == "" {
		return nil, &types.ExternalProcessError{Executable: d.Name + " prover", Err: errPathNotSet}
	}
	if d.Config.ProverKeyPath == "" {
		return nil, &types.ExternalProcessError{Executable: d.Name + " prover key", Err: errPathNotSet}
	}

	proofPath := d.path("_proof.json")
	if err := d.run(ctx, d.Config.ProverExecutablePath, d.Config.ProverKeyPath, witness.Path, proofPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(proofPath)
	if err != nil {
		return nil, &types.ExternalProcessError{Executable: d.Config.ProverExecutablePath, Err: err}
	}

	snarkProof, err := ParseSnarkJSProof(data)
	if err != nil {
		return nil, err
	}
	gnarkProof, err := ConvertProof(snarkProof)
	if err != nil {
		return nil, err
	}
	if d.vk != nil {
		if err := d.verify(gnarkProof, witness.Input); err != nil {
			return nil, err
		}
	}

	proof, err := snarkProof.ToGroth16Proof()
	if err != nil {
		return nil, err
	}
	d.log.Info().Str("proof", proofPath).Msg("proof generated")
	return proof, nil
}

func (d *Driver) verify(proof *groth16_bn254.Proof, input *Input) error {
	if input == nil {
		return fmt.Errorf("%s verification needs the circuit input", d.Name)
	}
	signals := make([]*big.Int, len(d.Config.PublicSignals))
	for i, name := range d.Config.PublicSignals {
		v, err := input.BigInt(name)
		if err != nil {
			return err
		}
		signals[i] = v
	}
	if err := VerifyProof(proof, d.vk, signals); err != nil {
		return fmt.Errorf("%s proof verification failed: %w", d.Name, err)
	}
	d.log.Debug().Msg("proof verified locally")
	return nil
}
