// Package deserialize reads consensus containers out of untrusted beacon-node
// JSON. Every accessor checks the node type, the presence of each property and
// the exact length of every hex string before a value is produced.
package deserialize

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/kysee/zk-lightclient/types"
)

const (
	VersionAltair    = "altair"
	VersionBellatrix = "bellatrix"
	VersionCapella   = "capella"
)

func fail(field, format string, args ...interface{}) error {
	return &types.DeserializationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func typeName(t jsoniter.ValueType) string {
	switch t {
	case jsoniter.StringValue:
		return "string"
	case jsoniter.NumberValue:
		return "number"
	case jsoniter.NilValue:
		return "null"
	case jsoniter.BoolValue:
		return "bool"
	case jsoniter.ArrayValue:
		return "array"
	case jsoniter.ObjectValue:
		return "object"
	default:
		return "missing"
	}
}

// CheckType fails unless v is a JSON value of type want.
func CheckType(v jsoniter.Any, field string, want jsoniter.ValueType) error {
	if got := v.ValueType(); got != want {
		return fail(field, "expected %s, got %s", typeName(want), typeName(got))
	}
	return nil
}

// Property returns the named member of the object v.
func Property(v jsoniter.Any, parent, name string) (jsoniter.Any, error) {
	if err := CheckType(v, parent, jsoniter.ObjectValue); err != nil {
		return nil, err
	}
	sub := v.Get(name)
	if sub.ValueType() == jsoniter.InvalidValue {
		return nil, fail(join(parent, name), "property does not exist")
	}
	return sub, nil
}

// Envelope parses data and walks the given properties, guarding each hop.
func Envelope(data []byte, path ...string) (jsoniter.Any, error) {
	v := jsoniter.Get(data)
	if v.ValueType() == jsoniter.InvalidValue {
		return nil, fail("", "invalid JSON: %v", v.LastError())
	}
	field := ""
	for _, name := range path {
		var err error
		if v, err = Property(v, field, name); err != nil {
			return nil, err
		}
		field = join(field, name)
	}
	return v, nil
}

func readString(v jsoniter.Any, field string) (string, error) {
	if err := CheckType(v, field, jsoniter.StringValue); err != nil {
		return "", err
	}
	return v.ToString(), nil
}

// ReadHex decodes a 0x-prefixed hex string of exactly n bytes.
func ReadHex(v jsoniter.Any, field string, n int) ([]byte, error) {
	s, err := readString(v, field)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(s, "0x") {
		return nil, fail(field, "hex string does not start with 0x")
	}
	if len(s) != 2+2*n {
		return nil, fail(field, "hex string has length %d, expected %d", len(s), 2+2*n)
	}
	bz, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fail(field, "invalid hex: %v", err)
	}
	return bz, nil
}

func ReadHex32(v jsoniter.Any, field string) (out types.Root, err error) {
	bz, err := ReadHex(v, field, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], bz)
	return out, nil
}

func ReadHex48(v jsoniter.Any, field string) (out types.BLSPubkey, err error) {
	bz, err := ReadHex(v, field, 48)
	if err != nil {
		return out, err
	}
	copy(out[:], bz)
	return out, nil
}

func ReadHex64(v jsoniter.Any, field string) (out types.SyncCommitteeBits, err error) {
	bz, err := ReadHex(v, field, 64)
	if err != nil {
		return out, err
	}
	copy(out[:], bz)
	return out, nil
}

func ReadHex96(v jsoniter.Any, field string) (out types.BLSSignature, err error) {
	bz, err := ReadHex(v, field, 96)
	if err != nil {
		return out, err
	}
	copy(out[:], bz)
	return out, nil
}

// ReadUint64 reads a decimal string, the beacon API encoding of integers.
func ReadUint64(v jsoniter.Any, field string) (uint64, error) {
	s, err := readString(v, field)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fail(field, "invalid decimal %q", s)
	}
	return n, nil
}

func ReadBeaconVersion(v jsoniter.Any, field string) (string, error) {
	s, err := readString(v, field)
	if err != nil {
		return "", err
	}
	switch s {
	case VersionAltair, VersionBellatrix, VersionCapella:
		return s, nil
	default:
		return "", fail(field, "unsupported beacon version %q", s)
	}
}

func ReadBeaconBlockHeader(v jsoniter.Any, field string) (h types.BeaconBlockHeader, err error) {
	if err = CheckType(v, field, jsoniter.ObjectValue); err != nil {
		return h, err
	}
	// Light client headers from capella on wrap the beacon header.
	if beacon := v.Get("beacon"); beacon.ValueType() != jsoniter.InvalidValue {
		return ReadBeaconBlockHeader(beacon, join(field, "beacon"))
	}

	var p jsoniter.Any
	if p, err = Property(v, field, "slot"); err != nil {
		return h, err
	}
	if h.Slot, err = ReadUint64(p, join(field, "slot")); err != nil {
		return h, err
	}
	if p, err = Property(v, field, "proposer_index"); err != nil {
		return h, err
	}
	if h.ProposerIndex, err = ReadUint64(p, join(field, "proposer_index")); err != nil {
		return h, err
	}
	if p, err = Property(v, field, "parent_root"); err != nil {
		return h, err
	}
	if h.ParentRoot, err = ReadHex32(p, join(field, "parent_root")); err != nil {
		return h, err
	}
	if p, err = Property(v, field, "state_root"); err != nil {
		return h, err
	}
	if h.StateRoot, err = ReadHex32(p, join(field, "state_root")); err != nil {
		return h, err
	}
	if p, err = Property(v, field, "body_root"); err != nil {
		return h, err
	}
	if h.BodyRoot, err = ReadHex32(p, join(field, "body_root")); err != nil {
		return h, err
	}
	return h, nil
}

// ReadMerkleBranch reads an array of exactly n 32-byte hashes.
func ReadMerkleBranch(v jsoniter.Any, field string, n int) ([]types.Root, error) {
	if err := CheckType(v, field, jsoniter.ArrayValue); err != nil {
		return nil, err
	}
	if v.Size() != n {
		return nil, fail(field, "branch has length %d, expected %d", v.Size(), n)
	}
	branch := make([]types.Root, n)
	for i := range branch {
		var err error
		if branch[i], err = ReadHex32(v.Get(i), fmt.Sprintf("%s[%d]", field, i)); err != nil {
			return nil, err
		}
	}
	return branch, nil
}

func ReadFinalityBranch(v jsoniter.Any, field string) ([]types.Root, error) {
	return ReadMerkleBranch(v, field, types.FinalityBranchDepth)
}

func ReadSyncCommitteeBranch(v jsoniter.Any, field string) ([]types.Root, error) {
	return ReadMerkleBranch(v, field, types.SyncCommitteeBranchDepth)
}

func ReadSyncCommittee(v jsoniter.Any, field string) (*types.SyncCommittee, error) {
	pubkeys, err := Property(v, field, "pubkeys")
	if err != nil {
		return nil, err
	}
	pubkeysField := join(field, "pubkeys")
	if err := CheckType(pubkeys, pubkeysField, jsoniter.ArrayValue); err != nil {
		return nil, err
	}
	if pubkeys.Size() != types.SyncCommitteeSize {
		return nil, fail(pubkeysField, "sync committee has %d pubkeys, expected %d", pubkeys.Size(), types.SyncCommitteeSize)
	}

	c := &types.SyncCommittee{}
	for i := range c.Pubkeys {
		if c.Pubkeys[i], err = ReadHex48(pubkeys.Get(i), fmt.Sprintf("%s[%d]", pubkeysField, i)); err != nil {
			return nil, err
		}
	}

	agg, err := Property(v, field, "aggregate_pubkey")
	if err != nil {
		return nil, err
	}
	if c.AggregatePubkey, err = ReadHex48(agg, join(field, "aggregate_pubkey")); err != nil {
		return nil, err
	}
	return c, nil
}

func ReadSyncAggregate(v jsoniter.Any, field string) (agg types.SyncAggregate, err error) {
	var p jsoniter.Any
	if p, err = Property(v, field, "sync_committee_bits"); err != nil {
		return agg, err
	}
	if agg.SyncCommitteeBits, err = ReadHex64(p, join(field, "sync_committee_bits")); err != nil {
		return agg, err
	}
	if p, err = Property(v, field, "sync_committee_signature"); err != nil {
		return agg, err
	}
	if agg.SyncCommitteeSignature, err = ReadHex96(p, join(field, "sync_committee_signature")); err != nil {
		return agg, err
	}
	return agg, nil
}

func readFinalityUpdateData(body jsoniter.Any, field string) (d types.FinalityUpdateData, err error) {
	var p jsoniter.Any
	if p, err = Property(body, field, "attested_header"); err != nil {
		return d, err
	}
	if d.AttestedHeader, err = ReadBeaconBlockHeader(p, join(field, "attested_header")); err != nil {
		return d, err
	}
	if p, err = Property(body, field, "finalized_header"); err != nil {
		return d, err
	}
	if d.FinalizedHeader, err = ReadBeaconBlockHeader(p, join(field, "finalized_header")); err != nil {
		return d, err
	}
	if p, err = Property(body, field, "finality_branch"); err != nil {
		return d, err
	}
	if d.FinalityBranch, err = ReadFinalityBranch(p, join(field, "finality_branch")); err != nil {
		return d, err
	}
	if p, err = Property(body, field, "sync_aggregate"); err != nil {
		return d, err
	}
	if d.SyncAggregate, err = ReadSyncAggregate(p, join(field, "sync_aggregate")); err != nil {
		return d, err
	}
	if p, err = Property(body, field, "signature_slot"); err != nil {
		return d, err
	}
	if d.SignatureSlot, err = ReadUint64(p, join(field, "signature_slot")); err != nil {
		return d, err
	}
	return d, nil
}

// ReadFinalityUpdate reads a `{version, data}` finality update object.
func ReadFinalityUpdate(v jsoniter.Any) (*types.FinalityUpdate, error) {
	p, err := Property(v, "", "version")
	if err != nil {
		return nil, err
	}
	version, err := ReadBeaconVersion(p, "version")
	if err != nil {
		return nil, err
	}
	body, err := Property(v, "", "data")
	if err != nil {
		return nil, err
	}
	data, err := readFinalityUpdateData(body, "data")
	if err != nil {
		return nil, err
	}
	return &types.FinalityUpdate{Version: version, Data: data}, nil
}

// ReadLightClientUpdate reads a finality update extended with the next sync
// committee and its branch.
func ReadLightClientUpdate(v jsoniter.Any) (*types.LightClientUpdate, error) {
	fu, err := ReadFinalityUpdate(v)
	if err != nil {
		return nil, err
	}
	body := v.Get("data")

	update := &types.LightClientUpdate{Version: fu.Version}
	update.Data.FinalityUpdateData = fu.Data

	p, err := Property(body, "data", "next_sync_committee_branch")
	if err != nil {
		return nil, err
	}
	if update.Data.NextSyncCommitteeBranch, err = ReadSyncCommitteeBranch(p, "data.next_sync_committee_branch"); err != nil {
		return nil, err
	}
	if p, err = Property(body, "data", "next_sync_committee"); err != nil {
		return nil, err
	}
	committee, err := ReadSyncCommittee(p, "data.next_sync_committee")
	if err != nil {
		return nil, err
	}
	update.Data.NextSyncCommittee = *committee
	return update, nil
}

// ReadLightClientUpdates reads the array returned by the updates route and
// requires exactly count entries.
func ReadLightClientUpdates(v jsoniter.Any, count int) ([]*types.LightClientUpdate, error) {
	if err := CheckType(v, "", jsoniter.ArrayValue); err != nil {
		return nil, err
	}
	if v.Size() != count {
		return nil, fail("", "got %d updates, expected %d", v.Size(), count)
	}
	updates := make([]*types.LightClientUpdate, count)
	for i := range updates {
		u, err := ReadLightClientUpdate(v.Get(i))
		if err != nil {
			var de *types.DeserializationError
			if errors.As(err, &de) {
				de.Field = join(fmt.Sprintf("[%d]", i), de.Field)
			}
			return nil, err
		}
		updates[i] = u
	}
	return updates, nil
}

// ReadGenesis reads the data object of /eth/v1/beacon/genesis.
func ReadGenesis(v jsoniter.Any, field string) (g types.Genesis, err error) {
	var p jsoniter.Any
	if p, err = Property(v, field, "genesis_time"); err != nil {
		return g, err
	}
	if g.GenesisTime, err = ReadUint64(p, join(field, "genesis_time")); err != nil {
		return g, err
	}
	if p, err = Property(v, field, "genesis_validators_root"); err != nil {
		return g, err
	}
	if g.GenesisValidatorsRoot, err = ReadHex32(p, join(field, "genesis_validators_root")); err != nil {
		return g, err
	}
	if p, err = Property(v, field, "genesis_fork_version"); err != nil {
		return g, err
	}
	version, err := ReadHex(p, join(field, "genesis_fork_version"), 4)
	if err != nil {
		return g, err
	}
	copy(g.GenesisForkVersion[:], version)
	return g, nil
}
