package circuit

import (
	"fmt"
	"math/big"

	"github.com/kysee/zk-lightclient/ssz"
	"github.com/kysee/zk-lightclient/types"
)

// StepPublicInputs are the values the step circuit commits to through
// publicInputsRoot.
type StepPublicInputs struct {
	FinalizedSlot         uint64
	FinalizedHeaderRoot   types.Root
	Participation         uint64
	ExecutionStateRoot    types.Root
	SyncCommitteePoseidon *big.Int
	PublicInputsRoot      *big.Int
}

func ComputeStepPublicInputs(update *types.TelepathyUpdate) (*StepPublicInputs, error) {
	poseidon, err := PoseidonSyncCommittee(update.CurrentSyncCommittee.Pubkeys[:])
	if err != nil {
		return nil, fmt.Errorf("failed to compute sync committee poseidon: %w", err)
	}
	p := &StepPublicInputs{
		FinalizedSlot:         update.FinalizedHeader.Slot,
		FinalizedHeaderRoot:   ssz.HashBeaconBlockHeader(&update.FinalizedHeader),
		Participation:         ssz.ComputeBitSum(update.SyncAggregate.SyncCommitteeBits),
		ExecutionStateRoot:    update.ExecutionStateRoot,
		SyncCommitteePoseidon: poseidon,
	}
	p.PublicInputsRoot = ComputePublicInputsRoot(p.FinalizedSlot, p.FinalizedHeaderRoot, p.Participation, p.ExecutionStateRoot, p.SyncCommitteePoseidon)
	return p, nil
}

// StepCircuit proves a finalized header signed by the current committee.
type StepCircuit struct {
	*Driver
}

func NewStepCircuit(d *Driver) *StepCircuit {
	return &StepCircuit{Driver: d}
}

func (c *StepCircuit) CalculateInputs(update *types.TelepathyUpdate) (*Input, error) {
	in := NewInput()
	if err := c.writeInputs(in, update); err != nil {
		return nil, err
	}
	return in, nil
}

func (c *StepCircuit) writeInputs(in *Input, update *types.TelepathyUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	public, err := ComputeStepPublicInputs(update)
	if err != nil {
		return err
	}

	attestedHeaderRoot := ssz.HashBeaconBlockHeader(&update.AttestedHeader)
	domain := ssz.ComputeDomain(update.ForkData.CurrentVersion, update.ForkData.GenesisValidatorsRoot)
	signingRoot := ssz.ComputeSigningRoot(attestedHeaderRoot, domain)

	writes := []func() error{
		func() error { return in.WriteBytes32("attestedHeaderRoot", attestedHeaderRoot) },
		func() error { return in.WriteBeaconBlockHeader("attested", &update.AttestedHeader) },
		func() error { return in.WriteBytes32("finalizedHeaderRoot", public.FinalizedHeaderRoot) },
		func() error { return in.WriteBeaconBlockHeader("finalized", &update.FinalizedHeader) },
		func() error { return in.WriteG1PointsAsBigInt("pubkeys", update.CurrentSyncCommittee.Pubkeys[:]) },
		func() error { return in.WriteBitArray("aggregationBits", update.SyncAggregate.SyncCommitteeBits) },
		func() error { return in.WriteG2Point("signature", update.SyncAggregate.SyncCommitteeSignature) },
		func() error { return in.WriteBytes32("domain", domain) },
		func() error { return in.WriteBytes32("signingRoot", signingRoot) },
		func() error { return in.WriteBigInt("participation", new(big.Int).SetUint64(public.Participation)) },
		func() error { return in.WriteBigInt("syncCommitteePoseidon", public.SyncCommitteePoseidon) },
		func() error { return in.WriteMerkleBranch("finalityBranch", update.FinalityBranch) },
		func() error { return in.WriteBytes32("executionStateRoot", update.ExecutionStateRoot) },
		func() error { return in.WriteMerkleBranch("executionStateBranch", update.ExecutionStateBranch) },
		func() error { return in.WriteBigInt("publicInputsRoot", public.PublicInputsRoot) },
	}
	for _, w := range writes {
		if err := w(); err != nil {
			return err
		}
	}
	return nil
}
