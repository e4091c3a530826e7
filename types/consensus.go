package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	zrntcommon "github.com/protolambda/zrnt/eth2/beacon/common"
)

type (
	Root         = zrntcommon.Root
	BLSPubkey    = zrntcommon.BLSPubkey
	BLSSignature = zrntcommon.BLSSignature
	Version      = zrntcommon.Version
)

// SyncCommitteeBits is the 512-bit participation bitvector of a sync aggregate.
// Bit i (byte i/8, bit i%8) is set when committee member i signed.
type SyncCommitteeBits [SyncCommitteeBitsLength]byte

func (b SyncCommitteeBits) MarshalText() ([]byte, error) {
	return []byte(hexutil.Encode(b[:])), nil
}

func (b *SyncCommitteeBits) UnmarshalText(text []byte) error {
	bz, err := hexutil.Decode(string(text))
	if err != nil {
		return err
	}
	if len(bz) != SyncCommitteeBitsLength {
		return fmt.Errorf("sync committee bits must be %d bytes, got %d", SyncCommitteeBitsLength, len(bz))
	}
	copy(b[:], bz)
	return nil
}

type BeaconBlockHeader struct {
	Slot          uint64 `json:"slot,string"`
	ProposerIndex uint64 `json:"proposer_index,string"`
	ParentRoot    Root   `json:"parent_root"`
	StateRoot     Root   `json:"state_root"`
	BodyRoot      Root   `json:"body_root"`
}

// HeaderFromZRNT converts a zrnt header into the local representation.
func HeaderFromZRNT(h *zrntcommon.BeaconBlockHeader) BeaconBlockHeader {
	return BeaconBlockHeader{
		Slot:          uint64(h.Slot),
		ProposerIndex: uint64(h.ProposerIndex),
		ParentRoot:    h.ParentRoot,
		StateRoot:     h.StateRoot,
		BodyRoot:      h.BodyRoot,
	}
}

func (h *BeaconBlockHeader) ZRNT() *zrntcommon.BeaconBlockHeader {
	return &zrntcommon.BeaconBlockHeader{
		Slot:          zrntcommon.Slot(h.Slot),
		ProposerIndex: zrntcommon.ValidatorIndex(h.ProposerIndex),
		ParentRoot:    h.ParentRoot,
		StateRoot:     h.StateRoot,
		BodyRoot:      h.BodyRoot,
	}
}

type SyncCommittee struct {
	Pubkeys         [SyncCommitteeSize]BLSPubkey `json:"pubkeys"`
	AggregatePubkey BLSPubkey                    `json:"aggregate_pubkey"`
}

// SyncCommitteeFromZRNT copies a zrnt committee, rejecting any size other than
// SyncCommitteeSize.
func SyncCommitteeFromZRNT(c *zrntcommon.SyncCommittee) (*SyncCommittee, error) {
	if len(c.Pubkeys) != SyncCommitteeSize {
		return nil, &InvariantViolation{What: fmt.Sprintf("sync committee has %d pubkeys, expected %d", len(c.Pubkeys), SyncCommitteeSize)}
	}
	out := &SyncCommittee{AggregatePubkey: c.AggregatePubkey}
	copy(out.Pubkeys[:], c.Pubkeys)
	return out, nil
}

type SyncAggregate struct {
	SyncCommitteeBits      SyncCommitteeBits `json:"sync_committee_bits"`
	SyncCommitteeSignature BLSSignature      `json:"sync_committee_signature"`
}

type ForkData struct {
	CurrentVersion        Version `json:"current_version"`
	GenesisValidatorsRoot Root    `json:"genesis_validators_root"`
}

// TelepathyUpdate is the consensus snapshot handed from the consensus client to the
// circuit encoders. It is built fresh for every tick and never mutated.
type TelepathyUpdate struct {
	AttestedHeader          BeaconBlockHeader `json:"attested_header"`
	FinalizedHeader         BeaconBlockHeader `json:"finalized_header"`
	FinalityBranch          []Root            `json:"finality_branch"`
	CurrentSyncCommittee    SyncCommittee     `json:"current_sync_committee"`
	NextSyncCommittee       SyncCommittee     `json:"next_sync_committee"`
	NextSyncCommitteeBranch []Root            `json:"next_sync_committee_branch"`
	SyncAggregate           SyncAggregate     `json:"sync_aggregate"`
	ForkData                ForkData          `json:"fork_data"`

	// Execution payload state root of the finalized block and its branch inside
	// the block body.
	ExecutionStateRoot   Root   `json:"execution_state_root"`
	ExecutionStateBranch []Root `json:"execution_state_branch"`
}

// Validate checks the fixed branch lengths of the snapshot.
func (u *TelepathyUpdate) Validate() error {
	if len(u.FinalityBranch) != FinalityBranchDepth {
		return &InvariantViolation{What: fmt.Sprintf("finality branch has length %d, expected %d", len(u.FinalityBranch), FinalityBranchDepth)}
	}
	if len(u.NextSyncCommitteeBranch) != SyncCommitteeBranchDepth {
		return &InvariantViolation{What: fmt.Sprintf("next sync committee branch has length %d, expected %d", len(u.NextSyncCommitteeBranch), SyncCommitteeBranchDepth)}
	}
	if len(u.ExecutionStateBranch) != ExecutionStateBranchDepth {
		return &InvariantViolation{What: fmt.Sprintf("execution state branch has length %d, expected %d", len(u.ExecutionStateBranch), ExecutionStateBranchDepth)}
	}
	return nil
}

type FinalityUpdateData struct {
	AttestedHeader  BeaconBlockHeader
	FinalizedHeader BeaconBlockHeader
	FinalityBranch  []Root
	SyncAggregate   SyncAggregate
	SignatureSlot   uint64
}

type FinalityUpdate struct {
	Version string
	Data    FinalityUpdateData
}

type LightClientUpdate struct {
	Version string
	Data    struct {
		FinalityUpdateData
		NextSyncCommittee       SyncCommittee
		NextSyncCommitteeBranch []Root
	}
}

type Genesis struct {
	GenesisTime           uint64
	GenesisValidatorsRoot Root
	GenesisForkVersion    Version
}

// ExecutionStateRootProof is the execution payload state root together with its
// Merkle branch inside the beacon block body.
type ExecutionStateRootProof struct {
	ExecutionStateRoot Root
	Branch             []Root
}
