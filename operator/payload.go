package operator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	circuit "github.com/kysee/zk-lightclient/circuits"
	optypes "github.com/kysee/zk-lightclient/operator/types"
	"github.com/kysee/zk-lightclient/ssz"
	"github.com/kysee/zk-lightclient/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func prove(ctx context.Context, c optypes.Prover, update *types.TelepathyUpdate) (*circuit.Groth16Proof, error) {
	input, err := c.CalculateInputs(update)
	if err != nil {
		return nil, err
	}
	witness, err := c.CalculateWitness(ctx, input)
	if err != nil {
		return nil, err
	}
	return c.Prove(ctx, witness)
}

func (o *Operator) createStepPayload(ctx context.Context, update *types.TelepathyUpdate) (*optypes.StepPayload, error) {
	o.log.Info().Uint64("finalizedSlot", update.FinalizedHeader.Slot).Msg("generating step proof")
	proof, err := prove(ctx, o.step, update)
	if err != nil {
		return nil, fmt.Errorf("step proof: %w", err)
	}
	payload := &optypes.StepPayload{
		FinalizedSlot:       update.FinalizedHeader.Slot,
		Participation:       ssz.ComputeBitSum(update.SyncAggregate.SyncCommitteeBits),
		FinalizedHeaderRoot: ssz.HashBeaconBlockHeader(&update.FinalizedHeader),
		ExecutionStateRoot:  update.ExecutionStateRoot,
		Proof:               *proof,
	}
	if err := o.writeArtifact(fmt.Sprintf("step_%d.json", payload.FinalizedSlot), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (o *Operator) createRotatePayload(ctx context.Context, update *types.TelepathyUpdate) (*optypes.RotatePayload, error) {
	o.log.Info().Uint64("finalizedSlot", update.FinalizedHeader.Slot).Msg("generating rotate proof")
	proof, err := prove(ctx, o.rotate, update)
	if err != nil {
		return nil, fmt.Errorf("rotate proof: %w", err)
	}
	step, err := o.createStepPayload(ctx, update)
	if err != nil {
		return nil, err
	}
	poseidon, err := circuit.PoseidonSyncCommittee(update.NextSyncCommittee.Pubkeys[:])
	if err != nil {
		return nil, err
	}
	payload := &optypes.RotatePayload{
		Step:                  *step,
		SyncCommitteeSSZ:      ssz.HashSyncCommittee(&update.NextSyncCommittee),
		SyncCommitteePoseidon: circuit.PoseidonCommitment(poseidon),
		Proof:                 *proof,
	}
	if err := o.writeArtifact(fmt.Sprintf("rotate_%d.json", step.FinalizedSlot), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeArtifact keeps a copy of each submitted payload in DataDir. Nothing is
// written when DataDir is empty.
func (o *Operator) writeArtifact(name string, v interface{}) error {
	if o.opts.DataDir == "" {
		return nil
	}
	if err := os.MkdirAll(o.opts.DataDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(o.opts.DataDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	o.log.Debug().Str("path", path).Msg("payload written")
	return nil
}
