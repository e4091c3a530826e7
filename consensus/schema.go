package consensus

import (
	"fmt"

	"github.com/protolambda/ztyp/tree"

	"github.com/kysee/zk-lightclient/deserialize"
	"github.com/kysee/zk-lightclient/ssz"
)

// schema lists the fields of an SSZ container in order, with the nested
// containers that can be addressed through it.
type schema struct {
	fields   []string
	children map[string]*schema
}

func (s *schema) depth() uint8 {
	return tree.CoverDepth(uint64(len(s.fields)))
}

func (s *schema) index(name string) (int, bool) {
	for i, f := range s.fields {
		if f == name {
			return i, true
		}
	}
	return 0, false
}

// gindex resolves a field path to its generalized index.
func (s *schema) gindex(path ...string) (uint64, error) {
	if len(path) == 0 {
		return 1, nil
	}
	i, ok := s.index(path[0])
	if !ok {
		return 0, fmt.Errorf("unknown field %q", path[0])
	}
	g := ssz.Gindex(s.depth(), uint64(i))
	if len(path) == 1 {
		return g, nil
	}
	child, ok := s.children[path[0]]
	if !ok {
		return 0, fmt.Errorf("field %q is not a container", path[0])
	}
	sub, err := child.gindex(path[1:]...)
	if err != nil {
		return 0, err
	}
	return ssz.ConcatGindices(g, sub), nil
}

func extend(base *schema, fields ...string) *schema {
	return &schema{
		fields:   append(append([]string(nil), base.fields...), fields...),
		children: base.children,
	}
}

var checkpointSchema = &schema{fields: []string{"epoch", "root"}}

var bellatrixPayloadSchema = &schema{fields: []string{
	"parent_hash", "fee_recipient", "state_root", "receipts_root", "logs_bloom", "prev_randao",
	"block_number", "gas_limit", "gas_used", "timestamp", "extra_data", "base_fee_per_gas",
	"block_hash", "transactions",
}}

var capellaPayloadSchema = extend(bellatrixPayloadSchema, "withdrawals")

var bellatrixStateSchema = &schema{
	fields: []string{
		"genesis_time", "genesis_validators_root", "slot", "fork", "latest_block_header",
		"block_roots", "state_roots", "historical_roots", "eth1_data", "eth1_data_votes",
		"eth1_deposit_index", "validators", "balances", "randao_mixes", "slashings",
		"previous_epoch_participation", "current_epoch_participation", "justification_bits",
		"previous_justified_checkpoint", "current_justified_checkpoint", "finalized_checkpoint",
		"inactivity_scores", "current_sync_committee", "next_sync_committee",
		"latest_execution_payload_header",
	},
	children: map[string]*schema{"finalized_checkpoint": checkpointSchema},
}

var capellaStateSchema = extend(bellatrixStateSchema,
	"next_withdrawal_index", "next_withdrawal_validator_index", "historical_summaries")

var bellatrixBodySchema = &schema{
	fields: []string{
		"randao_reveal", "eth1_data", "graffiti", "proposer_slashings", "attester_slashings",
		"attestations", "deposits", "voluntary_exits", "sync_aggregate", "execution_payload",
	},
	children: map[string]*schema{"execution_payload": bellatrixPayloadSchema},
}

var capellaBodySchema = &schema{
	fields:   append(append([]string(nil), bellatrixBodySchema.fields...), "bls_to_execution_changes"),
	children: map[string]*schema{"execution_payload": capellaPayloadSchema},
}

func stateSchema(version string) (*schema, error) {
	switch version {
	case deserialize.VersionBellatrix:
		return bellatrixStateSchema, nil
	case deserialize.VersionCapella:
		return capellaStateSchema, nil
	default:
		return nil, fmt.Errorf("unsupported state version %q", version)
	}
}

func bodySchema(version string) (*schema, error) {
	switch version {
	case deserialize.VersionBellatrix:
		return bellatrixBodySchema, nil
	case deserialize.VersionCapella:
		return capellaBodySchema, nil
	default:
		return nil, fmt.Errorf("unsupported block version %q", version)
	}
}

// StateGindex returns the generalized index of a beacon state field path.
func StateGindex(version string, path ...string) (uint64, error) {
	s, err := stateSchema(version)
	if err != nil {
		return 0, err
	}
	return s.gindex(path...)
}

// BodyGindex returns the generalized index of a block body field path.
func BodyGindex(version string, path ...string) (uint64, error) {
	s, err := bodySchema(version)
	if err != nil {
		return 0, err
	}
	return s.gindex(path...)
}
