package consensus

import (
	"fmt"
	"strings"

	"github.com/kysee/zk-lightclient/types"
)

const (
	slotsPerHistoricalRoot      = 8192
	epochsPerHistoricalVector   = 65536
	epochsPerSlashingsVector    = 8192
	testExecutionStateRootByte  = 0xee
	testSyncCommitteeBitsAllSet = 0xff
)

func hexBytes(n int, b byte) string {
	return fmt.Sprintf("%q", "0x"+strings.Repeat(fmt.Sprintf("%02x", b), n))
}

func rootHex(r types.Root) string {
	return fmt.Sprintf(`"0x%x"`, r[:])
}

func repeated(n int, item string) string {
	items := make([]string, n)
	for i := range items {
		items[i] = item
	}
	return "[" + strings.Join(items, ",") + "]"
}

func committeeJSON(seed byte) string {
	pubkeys := make([]string, types.SyncCommitteeSize)
	for i := range pubkeys {
		pubkeys[i] = fmt.Sprintf(`"0x%02x%04x%s"`, seed, i, strings.Repeat("ab", 45))
	}
	return fmt.Sprintf(`{"pubkeys":[%s],"aggregate_pubkey":%s}`, strings.Join(pubkeys, ","), hexBytes(48, seed))
}

func headerJSON(h types.BeaconBlockHeader) string {
	return fmt.Sprintf(`{"slot":"%d","proposer_index":"%d","parent_root":%s,"state_root":%s,"body_root":%s}`,
		h.Slot, h.ProposerIndex, rootHex(h.ParentRoot), rootHex(h.StateRoot), rootHex(h.BodyRoot))
}

func checkpointJSON(epoch uint64, root types.Root) string {
	return fmt.Sprintf(`{"epoch":"%d","root":%s}`, epoch, rootHex(root))
}

type stateFixture struct {
	version        string
	slot           uint64
	finalizedEpoch uint64
	finalizedRoot  types.Root
	currentSeed    byte
	nextSeed       byte
}

func (s stateFixture) JSON() string {
	var b strings.Builder
	fmt.Fprintf(&b, `{"version":%q,"execution_optimistic":false,"data":{`, s.version)
	fmt.Fprintf(&b, `"genesis_time":"1606824023","genesis_validators_root":%s,"slot":"%d",`, hexBytes(32, 0x4b), s.slot)
	fmt.Fprintf(&b, `"fork":{"previous_version":"0x01000000","current_version":"0x02000000","epoch":"144896"},`)
	fmt.Fprintf(&b, `"latest_block_header":%s,`, headerJSON(types.BeaconBlockHeader{Slot: s.slot, ProposerIndex: 7}))
	fmt.Fprintf(&b, `"block_roots":%s,"state_roots":%s,"historical_roots":[],`,
		repeated(slotsPerHistoricalRoot, hexBytes(32, 0x01)), repeated(slotsPerHistoricalRoot, hexBytes(32, 0x02)))
	fmt.Fprintf(&b, `"eth1_data":{"deposit_root":%s,"deposit_count":"0","block_hash":%s},"eth1_data_votes":[],"eth1_deposit_index":"0",`,
		hexBytes(32, 0x03), hexBytes(32, 0x04))
	fmt.Fprintf(&b, `"validators":[],"balances":[],"randao_mixes":%s,"slashings":%s,`,
		repeated(epochsPerHistoricalVector, hexBytes(32, 0x05)), repeated(epochsPerSlashingsVector, `"0"`))
	fmt.Fprintf(&b, `"previous_epoch_participation":[],"current_epoch_participation":[],"justification_bits":"0x0f",`)
	fmt.Fprintf(&b, `"previous_justified_checkpoint":%s,"current_justified_checkpoint":%s,"finalized_checkpoint":%s,`,
		checkpointJSON(s.finalizedEpoch, types.Root{0x06}), checkpointJSON(s.finalizedEpoch+1, types.Root{0x07}),
		checkpointJSON(s.finalizedEpoch, s.finalizedRoot))
	fmt.Fprintf(&b, `"inactivity_scores":[],"current_sync_committee":%s,"next_sync_committee":%s,`,
		committeeJSON(s.currentSeed), committeeJSON(s.nextSeed))
	fmt.Fprintf(&b, `"latest_execution_payload_header":{"parent_hash":%s,"fee_recipient":%s,"state_root":%s,"receipts_root":%s,`+
		`"logs_bloom":%s,"prev_randao":%s,"block_number":"100","gas_limit":"30000000","gas_used":"0","timestamp":"1700000000",`+
		`"extra_data":"0x","base_fee_per_gas":"7","block_hash":%s,"transactions_root":%s`,
		hexBytes(32, 0x08), hexBytes(20, 0x09), hexBytes(32, 0x0a), hexBytes(32, 0x0b), hexBytes(256, 0x00),
		hexBytes(32, 0x0c), hexBytes(32, 0x0d), hexBytes(32, 0x0e))
	if s.version == "capella" {
		fmt.Fprintf(&b, `,"withdrawals_root":%s},"next_withdrawal_index":"0","next_withdrawal_validator_index":"0","historical_summaries":[]`,
			hexBytes(32, 0x0f))
	} else {
		b.WriteString("}")
	}
	b.WriteString("}}")
	return b.String()
}

type blockFixture struct {
	version   string
	slot      uint64
	stateRoot types.Root
	bits      byte
}

func (f blockFixture) JSON() string {
	var b strings.Builder
	fmt.Fprintf(&b, `{"version":%q,"execution_optimistic":false,"finalized":true,"data":{"message":{`, f.version)
	fmt.Fprintf(&b, `"slot":"%d","proposer_index":"11","parent_root":%s,"state_root":%s,"body":{`,
		f.slot, hexBytes(32, 0x21), rootHex(f.stateRoot))
	fmt.Fprintf(&b, `"randao_reveal":%s,"eth1_data":{"deposit_root":%s,"deposit_count":"0","block_hash":%s},"graffiti":%s,`,
		hexBytes(96, 0x22), hexBytes(32, 0x03), hexBytes(32, 0x04), hexBytes(32, 0x23))
	b.WriteString(`"proposer_slashings":[],"attester_slashings":[],"attestations":[],"deposits":[],"voluntary_exits":[],`)
	fmt.Fprintf(&b, `"sync_aggregate":{"sync_committee_bits":%s,"sync_committee_signature":%s},`,
		hexBytes(64, f.bits), hexBytes(96, 0xc0))
	fmt.Fprintf(&b, `"execution_payload":{"parent_hash":%s,"fee_recipient":%s,"state_root":%s,"receipts_root":%s,`+
		`"logs_bloom":%s,"prev_randao":%s,"block_number":"101","gas_limit":"30000000","gas_used":"21000","timestamp":"1700000012",`+
		`"extra_data":"0x6869","base_fee_per_gas":"7","block_hash":%s,"transactions":["0x02f8"]`,
		hexBytes(32, 0x24), hexBytes(20, 0x25), hexBytes(32, testExecutionStateRootByte), hexBytes(32, 0x26),
		hexBytes(256, 0x00), hexBytes(32, 0x27), hexBytes(32, 0x28))
	if f.version == "capella" {
		b.WriteString(`,"withdrawals":[]},"bls_to_execution_changes":[]`)
	} else {
		b.WriteString("}")
	}
	fmt.Fprintf(&b, `}},"signature":%s}}`, hexBytes(96, 0x29))
	return b.String()
}

func headerResponse(h types.BeaconBlockHeader) string {
	return fmt.Sprintf(`{"execution_optimistic":false,"finalized":true,"data":{"root":%s,"canonical":true,"header":{"message":%s,"signature":%s}}}`,
		hexBytes(32, 0x00), headerJSON(h), hexBytes(96, 0x00))
}
