package types

import (
	"context"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	circuit "github.com/kysee/zk-lightclient/circuits"
	"github.com/kysee/zk-lightclient/consensus"
	"github.com/kysee/zk-lightclient/types"
)

// ConsensusSource provides consensus snapshots. Both the beacon HTTP client
// and the file replay source implement it.
type ConsensusSource interface {
	GetHeader(ctx context.Context, id consensus.BeaconID) (types.BeaconBlockHeader, error)
	GetTelepathyUpdate(ctx context.Context, id consensus.BeaconID) (*types.TelepathyUpdate, error)
	GetFinalizedTelepathyUpdateInPeriod(ctx context.Context, period uint64) (*types.TelepathyUpdate, error)
}

// Destination is a light client contract on one chain.
type Destination interface {
	Name() string
	Head(ctx context.Context) (uint64, error)
	// SyncCommitteePoseidon returns the zero root when no committee is stored.
	SyncCommitteePoseidon(ctx context.Context, period uint64) (types.Root, error)
	Step(ctx context.Context, payload *StepPayload) (*gethtypes.Transaction, error)
	Rotate(ctx context.Context, payload *RotatePayload) (*gethtypes.Transaction, error)
	WaitMined(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error)
}

// Prover is the circuit capability used by the operator.
type Prover = circuit.Circuit
