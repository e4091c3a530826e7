package consensus

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/protolambda/zrnt/eth2/beacon/bellatrix"
	"github.com/protolambda/zrnt/eth2/beacon/capella"
	"github.com/protolambda/zrnt/eth2/beacon/common"
	"github.com/protolambda/zrnt/eth2/configs"
	"github.com/protolambda/ztyp/tree"

	"github.com/kysee/zk-lightclient/deserialize"
	"github.com/kysee/zk-lightclient/ssz"
	"github.com/kysee/zk-lightclient/types"
)

type plainRoot interface {
	HashTreeRoot(hFn tree.HashFn) common.Root
}

type specRoot interface {
	HashTreeRoot(spec *common.Spec, hFn tree.HashFn) common.Root
}

// hashFields computes the hash tree root of each container field in order.
func hashFields(values ...interface{}) ([]types.Root, error) {
	hFn := tree.GetHashFn()
	roots := make([]types.Root, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case plainRoot:
			roots[i] = x.HashTreeRoot(hFn)
		case specRoot:
			roots[i] = x.HashTreeRoot(configs.Mainnet, hFn)
		default:
			return nil, &types.InvariantViolation{What: fmt.Sprintf("field %d (%T) has no hash tree root", i, v)}
		}
	}
	return roots, nil
}

// buildTree assembles a container from its field roots, substituting the
// expanded subtrees of nested containers so they can be proven into.
func buildTree(s *schema, roots []types.Root, expanded map[string]*ssz.Node) (*ssz.Node, error) {
	if len(roots) != len(s.fields) {
		return nil, &types.InvariantViolation{What: fmt.Sprintf("container has %d field roots, expected %d", len(roots), len(s.fields))}
	}
	nodes := make([]*ssz.Node, len(roots))
	for i, name := range s.fields {
		sub, ok := expanded[name]
		if !ok {
			nodes[i] = ssz.NewLeaf(roots[i])
			continue
		}
		if sub.Root() != roots[i] {
			return nil, &types.InvariantViolation{What: fmt.Sprintf("subtree of %s does not match its field root", name)}
		}
		nodes[i] = sub
	}
	return ssz.Container(nodes...), nil
}

type blockObject interface {
	HashTreeRoot(spec *common.Spec, hFn tree.HashFn) common.Root
	Header(spec *common.Spec) *common.BeaconBlockHeader
}

// Block is a decoded beacon block of a post-merge fork.
type Block struct {
	Version string
	obj     blockObject
}

type jsonSignedBlock struct {
	Version string `json:"version"`
	Data    struct {
		Message jsoniter.RawMessage `json:"message"`
	} `json:"data"`
}

// DecodeBlock decodes a /eth/v2/beacon/blocks response.
func DecodeBlock(body []byte) (*Block, error) {
	v, err := deserialize.Envelope(body, "version")
	if err != nil {
		return nil, err
	}
	version, err := deserialize.ReadBeaconVersion(v, "version")
	if err != nil {
		return nil, err
	}
	if _, err := deserialize.Envelope(body, "data", "message"); err != nil {
		return nil, err
	}

	var raw jsonSignedBlock
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &types.DeserializationError{Field: "data", Reason: err.Error()}
	}

	b := &Block{Version: version}
	switch version {
	case deserialize.VersionBellatrix:
		b.obj = new(bellatrix.BeaconBlock)
	case deserialize.VersionCapella:
		b.obj = new(capella.BeaconBlock)
	default:
		return nil, &types.DeserializationError{Field: "version", Reason: fmt.Sprintf("block version %q has no execution payload", version)}
	}
	if err := json.Unmarshal(raw.Data.Message, b.obj); err != nil {
		return nil, &types.DeserializationError{Field: "data.message", Reason: err.Error()}
	}
	return b, nil
}

func (b *Block) Header() types.BeaconBlockHeader {
	return types.HeaderFromZRNT(b.obj.Header(configs.Mainnet))
}

func (b *Block) Root() types.Root {
	return b.obj.HashTreeRoot(configs.Mainnet, tree.GetHashFn())
}

func (b *Block) SyncAggregate() (types.SyncAggregate, error) {
	var agg types.SyncAggregate
	var bits []byte
	switch obj := b.obj.(type) {
	case *bellatrix.BeaconBlock:
		bits = obj.Body.SyncAggregate.SyncCommitteeBits
		agg.SyncCommitteeSignature = obj.Body.SyncAggregate.SyncCommitteeSignature
	case *capella.BeaconBlock:
		bits = obj.Body.SyncAggregate.SyncCommitteeBits
		agg.SyncCommitteeSignature = obj.Body.SyncAggregate.SyncCommitteeSignature
	default:
		return agg, fmt.Errorf("unsupported block type %T", b.obj)
	}
	if len(bits) != types.SyncCommitteeBitsLength {
		return agg, &types.InvariantViolation{What: fmt.Sprintf("sync committee bits have %d bytes, expected %d", len(bits), types.SyncCommitteeBitsLength)}
	}
	copy(agg.SyncCommitteeBits[:], bits)
	return agg, nil
}

// BodyTree builds the block body tree with the execution payload expanded.
func (b *Block) BodyTree() (*ssz.Node, error) {
	var bodyFields, payloadFields []interface{}
	switch obj := b.obj.(type) {
	case *bellatrix.BeaconBlock:
		body := &obj.Body
		p := &body.ExecutionPayload
		bodyFields = []interface{}{
			&body.RandaoReveal, &body.Eth1Data, &body.Graffiti, &body.ProposerSlashings,
			&body.AttesterSlashings, &body.Attestations, &body.Deposits, &body.VoluntaryExits,
			&body.SyncAggregate, &body.ExecutionPayload,
		}
		payloadFields = []interface{}{
			&p.ParentHash, &p.FeeRecipient, &p.StateRoot, &p.ReceiptsRoot, &p.LogsBloom, &p.PrevRandao,
			&p.BlockNumber, &p.GasLimit, &p.GasUsed, &p.Timestamp, &p.ExtraData, &p.BaseFeePerGas,
			&p.BlockHash, &p.Transactions,
		}
	case *capella.BeaconBlock:
		body := &obj.Body
		p := &body.ExecutionPayload
		bodyFields = []interface{}{
			&body.RandaoReveal, &body.Eth1Data, &body.Graffiti, &body.ProposerSlashings,
			&body.AttesterSlashings, &body.Attestations, &body.Deposits, &body.VoluntaryExits,
			&body.SyncAggregate, &body.ExecutionPayload, &body.BLSToExecutionChanges,
		}
		payloadFields = []interface{}{
			&p.ParentHash, &p.FeeRecipient, &p.StateRoot, &p.ReceiptsRoot, &p.LogsBloom, &p.PrevRandao,
			&p.BlockNumber, &p.GasLimit, &p.GasUsed, &p.Timestamp, &p.ExtraData, &p.BaseFeePerGas,
			&p.BlockHash, &p.Transactions, &p.Withdrawals,
		}
	default:
		return nil, fmt.Errorf("unsupported block type %T", b.obj)
	}

	s, err := bodySchema(b.Version)
	if err != nil {
		return nil, err
	}
	payloadRoots, err := hashFields(payloadFields...)
	if err != nil {
		return nil, err
	}
	payload, err := buildTree(s.children["execution_payload"], payloadRoots, nil)
	if err != nil {
		return nil, err
	}
	bodyRoots, err := hashFields(bodyFields...)
	if err != nil {
		return nil, err
	}
	return buildTree(s, bodyRoots, map[string]*ssz.Node{"execution_payload": payload})
}

// ExecutionStateRootProof proves the execution payload state root against the
// block body root.
func (b *Block) ExecutionStateRootProof() (*types.ExecutionStateRootProof, error) {
	body, err := b.BodyTree()
	if err != nil {
		return nil, err
	}
	if body.Root() != b.Header().BodyRoot {
		return nil, &types.InvariantViolation{What: "computed block body root does not match the block header"}
	}
	gindex, err := BodyGindex(b.Version, "execution_payload", "state_root")
	if err != nil {
		return nil, err
	}
	leaf, err := body.Getter(gindex)
	if err != nil {
		return nil, err
	}
	branch, err := body.Branch(gindex)
	if err != nil {
		return nil, err
	}
	return &types.ExecutionStateRootProof{ExecutionStateRoot: leaf.Root(), Branch: branch}, nil
}

type stateObject interface {
	HashTreeRoot(spec *common.Spec, hFn tree.HashFn) common.Root
}

// State is a decoded beacon state of a post-merge fork.
type State struct {
	Version string
	obj     stateObject
}

type jsonState struct {
	Data jsoniter.RawMessage `json:"data"`
}

// DecodeState decodes a /eth/v2/debug/beacon/states response.
func DecodeState(body []byte) (*State, error) {
	v, err := deserialize.Envelope(body, "version")
	if err != nil {
		return nil, err
	}
	version, err := deserialize.ReadBeaconVersion(v, "version")
	if err != nil {
		return nil, err
	}
	if _, err := deserialize.Envelope(body, "data"); err != nil {
		return nil, err
	}

	var raw jsonState
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &types.DeserializationError{Field: "data", Reason: err.Error()}
	}

	s := &State{Version: version}
	switch version {
	case deserialize.VersionBellatrix:
		s.obj = new(bellatrix.BeaconState)
	case deserialize.VersionCapella:
		s.obj = new(capella.BeaconState)
	default:
		return nil, &types.DeserializationError{Field: "version", Reason: fmt.Sprintf("state version %q is not supported", version)}
	}
	if err := json.Unmarshal(raw.Data, s.obj); err != nil {
		return nil, &types.DeserializationError{Field: "data", Reason: err.Error()}
	}
	return s, nil
}

// Root is the full hash tree root computed by zrnt.
func (s *State) Root() types.Root {
	return s.obj.HashTreeRoot(configs.Mainnet, tree.GetHashFn())
}

type stateCore struct {
	slot                  common.Slot
	genesisValidatorsRoot common.Root
	fork                  common.Fork
	finalized             common.Checkpoint
	current, next         *common.SyncCommittee
}

func (s *State) core() stateCore {
	switch obj := s.obj.(type) {
	case *bellatrix.BeaconState:
		return stateCore{obj.Slot, obj.GenesisValidatorsRoot, obj.Fork, obj.FinalizedCheckpoint, &obj.CurrentSyncCommittee, &obj.NextSyncCommittee}
	case *capella.BeaconState:
		return stateCore{obj.Slot, obj.GenesisValidatorsRoot, obj.Fork, obj.FinalizedCheckpoint, &obj.CurrentSyncCommittee, &obj.NextSyncCommittee}
	default:
		panic(fmt.Errorf("unsupported state type %T", s.obj))
	}
}

func (s *State) Slot() uint64 {
	return uint64(s.core().slot)
}

func (s *State) FinalizedCheckpointRoot() types.Root {
	return s.core().finalized.Root
}

func (s *State) CurrentSyncCommittee() (*types.SyncCommittee, error) {
	return types.SyncCommitteeFromZRNT(s.core().current)
}

func (s *State) NextSyncCommittee() (*types.SyncCommittee, error) {
	return types.SyncCommitteeFromZRNT(s.core().next)
}

func (s *State) ForkData() types.ForkData {
	c := s.core()
	return types.ForkData{CurrentVersion: c.fork.CurrentVersion, GenesisValidatorsRoot: c.genesisValidatorsRoot}
}

func (s *State) fields() ([]interface{}, error) {
	switch v := s.obj.(type) {
	case *bellatrix.BeaconState:
		return []interface{}{
			&v.GenesisTime, &v.GenesisValidatorsRoot, &v.Slot, &v.Fork, &v.LatestBlockHeader,
			&v.BlockRoots, &v.StateRoots, &v.HistoricalRoots, &v.Eth1Data, &v.Eth1DataVotes,
			&v.Eth1DepositIndex, &v.Validators, &v.Balances, &v.RandaoMixes, &v.Slashings,
			&v.PreviousEpochParticipation, &v.CurrentEpochParticipation, &v.JustificationBits,
			&v.PreviousJustifiedCheckpoint, &v.CurrentJustifiedCheckpoint, &v.FinalizedCheckpoint,
			&v.InactivityScores, &v.CurrentSyncCommittee, &v.NextSyncCommittee,
			&v.LatestExecutionPayloadHeader,
		}, nil
	case *capella.BeaconState:
		return []interface{}{
			&v.GenesisTime, &v.GenesisValidatorsRoot, &v.Slot, &v.Fork, &v.LatestBlockHeader,
			&v.BlockRoots, &v.StateRoots, &v.HistoricalRoots, &v.Eth1Data, &v.Eth1DataVotes,
			&v.Eth1DepositIndex, &v.Validators, &v.Balances, &v.RandaoMixes, &v.Slashings,
			&v.PreviousEpochParticipation, &v.CurrentEpochParticipation, &v.JustificationBits,
			&v.PreviousJustifiedCheckpoint, &v.CurrentJustifiedCheckpoint, &v.FinalizedCheckpoint,
			&v.InactivityScores, &v.CurrentSyncCommittee, &v.NextSyncCommittee,
			&v.LatestExecutionPayloadHeader, &v.NextWithdrawalIndex, &v.NextWithdrawalValidatorIndex,
			&v.HistoricalSummaries,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported state type %T", s.obj)
	}
}

// Tree builds the state tree with the finalized checkpoint expanded.
func (s *State) Tree() (*ssz.Node, error) {
	fields, err := s.fields()
	if err != nil {
		return nil, err
	}
	roots, err := hashFields(fields...)
	if err != nil {
		return nil, err
	}
	sch, err := stateSchema(s.Version)
	if err != nil {
		return nil, err
	}
	cp := s.core().finalized
	checkpoint := ssz.ContainerFromRoots(ssz.ToLittleEndian(uint64(cp.Epoch)), cp.Root)
	return buildTree(sch, roots, map[string]*ssz.Node{"finalized_checkpoint": checkpoint})
}

// Proof returns the leaf at path and its branch against the state root.
func (s *State) Proof(stateRoot types.Root, path ...string) (types.Root, []types.Root, error) {
	t, err := s.Tree()
	if err != nil {
		return types.Root{}, nil, err
	}
	if computed := t.Root(); computed != stateRoot {
		return types.Root{}, nil, &types.InvariantViolation{What: fmt.Sprintf("computed state root %x does not match %x", computed[:], stateRoot[:])}
	}
	gindex, err := StateGindex(s.Version, path...)
	if err != nil {
		return types.Root{}, nil, err
	}
	leaf, err := t.Getter(gindex)
	if err != nil {
		return types.Root{}, nil, err
	}
	branch, err := t.Branch(gindex)
	if err != nil {
		return types.Root{}, nil, err
	}
	return leaf.Root(), branch, nil
}
