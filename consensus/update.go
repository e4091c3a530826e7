package consensus

import (
	"context"
	"fmt"

	"github.com/kysee/zk-lightclient/ssz"
	"github.com/kysee/zk-lightclient/types"
)

// GetTelepathyUpdate assembles the snapshot attested at id: the attested and
// finalized headers, both sync committees, the finality and next committee
// branches, the sync aggregate, the fork data and the execution state root of
// the finalized block. Any failure aborts the whole snapshot.
func (c *Client) GetTelepathyUpdate(ctx context.Context, id BeaconID) (*types.TelepathyUpdate, error) {
	attestedHeader, err := c.GetHeader(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attested header %s: %w", id, err)
	}
	attestedBlock, err := c.GetBlock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attested block %s: %w", id, err)
	}
	if ssz.HashBeaconBlockHeader(&attestedHeader) != attestedBlock.Root() {
		return nil, &types.InvariantViolation{What: fmt.Sprintf("attested block %s does not match its header", id)}
	}
	attestedState, err := c.GetState(ctx, RootID(attestedHeader.StateRoot))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attested state: %w", err)
	}

	finalizedRoot := attestedState.FinalizedCheckpointRoot()
	finalizedHeader, err := c.GetHeader(ctx, RootID(finalizedRoot))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch finalized header: %w", err)
	}
	if ssz.HashBeaconBlockHeader(&finalizedHeader) != finalizedRoot {
		return nil, &types.InvariantViolation{What: "finalized header does not match the finalized checkpoint root"}
	}
	finalizedState, err := c.GetState(ctx, RootID(finalizedHeader.StateRoot))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch finalized state: %w", err)
	}

	currentSyncCommittee, err := attestedState.CurrentSyncCommittee()
	if err != nil {
		return nil, err
	}
	nextSyncCommittee, err := finalizedState.NextSyncCommittee()
	if err != nil {
		return nil, err
	}
	_, nextSyncCommitteeBranch, err := finalizedState.Proof(finalizedHeader.StateRoot, "next_sync_committee")
	if err != nil {
		return nil, fmt.Errorf("failed to prove next sync committee: %w", err)
	}
	_, finalityBranch, err := attestedState.Proof(attestedHeader.StateRoot, "finalized_checkpoint", "root")
	if err != nil {
		return nil, fmt.Errorf("failed to prove finalized checkpoint: %w", err)
	}

	syncAggregate, err := attestedBlock.SyncAggregate()
	if err != nil {
		return nil, err
	}

	execution, err := c.GetExecutionStateRootProof(ctx, RootID(finalizedRoot))
	if err != nil {
		return nil, fmt.Errorf("failed to prove execution state root: %w", err)
	}

	update := &types.TelepathyUpdate{
		AttestedHeader:          attestedHeader,
		FinalizedHeader:         finalizedHeader,
		FinalityBranch:          finalityBranch,
		CurrentSyncCommittee:    *currentSyncCommittee,
		NextSyncCommittee:       *nextSyncCommittee,
		NextSyncCommitteeBranch: nextSyncCommitteeBranch,
		SyncAggregate:           syncAggregate,
		ForkData:                attestedState.ForkData(),
		ExecutionStateRoot:      execution.ExecutionStateRoot,
		ExecutionStateBranch:    execution.Branch,
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	c.log.Debug().
		Uint64("attestedSlot", attestedHeader.Slot).
		Uint64("finalizedSlot", finalizedHeader.Slot).
		Uint64("participation", syncAggregate.SyncCommitteeBits.Participation()).
		Msg("assembled telepathy update")
	return update, nil
}

// GetExecutionStateRootProof proves the execution payload state root of block id
// against its body root.
func (c *Client) GetExecutionStateRootProof(ctx context.Context, id BeaconID) (*types.ExecutionStateRootProof, error) {
	block, err := c.GetBlock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %s: %w", id, err)
	}
	return block.ExecutionStateRootProof()
}

// GetFinalizedTelepathyUpdateInPeriod builds a snapshot from the best light
// client update of period. It fails with types.ErrNoFinalizedUpdate when that
// update does not finalize a block inside period.
func (c *Client) GetFinalizedTelepathyUpdateInPeriod(ctx context.Context, period uint64) (*types.TelepathyUpdate, error) {
	updates, err := c.GetUpdates(ctx, period, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch light client update for period %d: %w", period, err)
	}
	attestedSlot := updates[0].Data.AttestedHeader.Slot
	update, err := c.GetTelepathyUpdate(ctx, SlotID(attestedSlot))
	if err != nil {
		return nil, err
	}
	if types.Period(update.FinalizedHeader.Slot) != period {
		return nil, fmt.Errorf("period %d, finalized slot %d: %w", period, update.FinalizedHeader.Slot, types.ErrNoFinalizedUpdate)
	}
	return update, nil
}
