package circuit

import (
	"fmt"

	"github.com/kysee/zk-lightclient/ssz"
	"github.com/kysee/zk-lightclient/types"
)

// RotateCircuit proves the next committee against a finalized state. Its
// input carries the full step encoding of the same update.
type RotateCircuit struct {
	*Driver
	Step *StepCircuit
}

func NewRotateCircuit(d *Driver, step *StepCircuit) *RotateCircuit {
	return &RotateCircuit{Driver: d, Step: step}
}

func (c *RotateCircuit) CalculateInputs(update *types.TelepathyUpdate) (*Input, error) {
	in := NewInput()
	if err := c.Step.writeInputs(in, update); err != nil {
		return nil, err
	}

	next := &update.NextSyncCommittee
	poseidon, err := PoseidonSyncCommittee(next.Pubkeys[:])
	if err != nil {
		return nil, fmt.Errorf("failed to compute next sync committee poseidon: %w", err)
	}

	writes := []func() error{
		func() error { return in.WriteG1PointsAsBytes("pubkeysBytes", next.Pubkeys[:]) },
		func() error { return in.WriteG1PointAsBytes("aggregatePubkeyBytes", next.AggregatePubkey) },
		func() error { return in.WriteG1PointsAsBigInt("pubkeysBigInt", next.Pubkeys[:]) },
		func() error { return in.WriteG1PointAsBigInt("aggregatePubkeyBigInt", next.AggregatePubkey) },
		func() error { return in.WriteBytes32("syncCommitteeSSZ", ssz.HashSyncCommittee(next)) },
		func() error { return in.WriteMerkleBranch("syncCommitteeBranch", update.NextSyncCommitteeBranch) },
		func() error { return in.WriteBigInt("nextSyncCommitteePoseidon", poseidon) },
	}
	for _, w := range writes {
		if err := w(); err != nil {
			return err
		}
	}
	return in, nil
}
