package types

import (
	circuit "github.com/kysee/zk-lightclient/circuits"
	"github.com/kysee/zk-lightclient/types"
)

// StepPayload is the argument of the contract's step method.
type StepPayload struct {
	FinalizedSlot       uint64               `json:"finalizedSlot"`
	Participation       uint64               `json:"participation"`
	FinalizedHeaderRoot types.Root           `json:"finalizedHeaderRoot"`
	ExecutionStateRoot  types.Root           `json:"executionStateRoot"`
	Proof               circuit.Groth16Proof `json:"proof"`
}

// RotatePayload is the argument of the contract's rotate method. Step is a
// fresh step payload for the same snapshot.
type RotatePayload struct {
	Step                  StepPayload          `json:"step"`
	SyncCommitteeSSZ      types.Root           `json:"syncCommitteeSSZ"`
	SyncCommitteePoseidon types.Root           `json:"syncCommitteePoseidon"`
	Proof                 circuit.Groth16Proof `json:"proof"`
}

// NextPeriod is the period whose committee this rotate installs.
func (p *RotatePayload) NextPeriod() uint64 {
	return types.Period(p.Step.FinalizedSlot) + 1
}
