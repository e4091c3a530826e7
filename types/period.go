package types

const (
	SlotsPerEpoch   = 32
	EpochsPerPeriod = 256
	SlotsPerPeriod  = SlotsPerEpoch * EpochsPerPeriod

	SyncCommitteeSize       = 512
	SyncCommitteeBitsLength = SyncCommitteeSize / 8

	// Branch depths of the pre-Electra state and block body trees.
	FinalityBranchDepth       = 6
	SyncCommitteeBranchDepth  = 5
	ExecutionStateBranchDepth = 8

	// Generalized indices matching the depths above.
	FinalizedRootGindex        = 105
	NextSyncCommitteeGindex    = 55
	ExecutionStateRootGindex   = 402
	CurrentSyncCommitteeGindex = 54
)

// DomainSyncCommittee is DOMAIN_SYNC_COMMITTEE.
var DomainSyncCommittee = [4]byte{0x07, 0x00, 0x00, 0x00}

// Period returns the sync committee period that contains slot.
func Period(slot uint64) uint64 {
	return slot / SlotsPerPeriod
}

// HasQuorum reports whether strictly more than two thirds of the committee
// participated.
func HasQuorum(participation uint64) bool {
	return 3*participation > 2*SyncCommitteeSize
}
