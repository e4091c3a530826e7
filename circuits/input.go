package circuit

import (
	"bytes"
	"fmt"
	"math/big"

	jsoniter "github.com/json-iterator/go"
	"github.com/kysee/zk-lightclient/ssz"
	"github.com/kysee/zk-lightclient/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Input is the ordered set of named signals handed to the witness generator.
// A signal name can be written only once.
type Input struct {
	names  []string
	values map[string]interface{}
}

func NewInput() *Input {
	return &Input{values: make(map[string]interface{})}
}

func (in *Input) set(name string, value interface{}) error {
	if _, ok := in.values[name]; ok {
		return &types.InvariantViolation{What: fmt.Sprintf("circuit input %q written twice", name)}
	}
	in.names = append(in.names, name)
	in.values[name] = value
	return nil
}

// Names returns the signal names in insertion order.
func (in *Input) Names() []string {
	return append([]string(nil), in.names...)
}

func (in *Input) Get(name string) (interface{}, bool) {
	v, ok := in.values[name]
	return v, ok
}

func (in *Input) Len() int { return len(in.names) }

// BigInt returns a signal written with WriteBigInt.
func (in *Input) BigInt(name string) (*big.Int, error) {
	v, ok := in.values[name]
	if !ok {
		return nil, fmt.Errorf("circuit input %q not found", name)
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("circuit input %q is not a scalar", name)
	}
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("circuit input %q is not a decimal integer", name)
	}
	return bi, nil
}

// MarshalJSON writes the signals as a JSON object in insertion order.
func (in *Input) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range in.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(in.values[name])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func bytesToSignals(b []byte) []string {
	out := make([]string, len(b))
	for i, x := range b {
		out[i] = fmt.Sprintf("%d", x)
	}
	return out
}

func limbsToSignals(limbs []*big.Int) []string {
	out := make([]string, len(limbs))
	for i, l := range limbs {
		out[i] = l.String()
	}
	return out
}

// WriteBytes32 encodes a 32-byte value as 32 byte-sized field elements.
func (in *Input) WriteBytes32(name string, value types.Root) error {
	return in.set(name, bytesToSignals(value[:]))
}

func (in *Input) WriteBigInt(name string, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return &types.InvariantViolation{What: fmt.Sprintf("circuit input %q must be a non-negative integer", name)}
	}
	return in.set(name, value.String())
}

// WriteBitArray writes bit i as the i-th element, in SSZ bit order.
func (in *Input) WriteBitArray(name string, bits types.SyncCommitteeBits) error {
	parsed := types.ParseSyncCommitteeBits(bits)
	out := make([]string, len(parsed))
	for i, b := range parsed {
		if b {
			out[i] = "1"
		} else {
			out[i] = "0"
		}
	}
	return in.set(name, out)
}

func (in *Input) WriteMerkleBranch(name string, branch []types.Root) error {
	out := make([][]string, len(branch))
	for i, node := range branch {
		out[i] = bytesToSignals(node[:])
	}
	return in.set(name, out)
}

// WriteBeaconBlockHeader writes the five header fields as <prefix>Slot,
// <prefix>ProposerIndex, <prefix>ParentRoot, <prefix>StateRoot and <prefix>BodyRoot.
func (in *Input) WriteBeaconBlockHeader(prefix string, h *types.BeaconBlockHeader) error {
	fields := []struct {
		name  string
		value types.Root
	}{
		{"Slot", ssz.ToLittleEndian(h.Slot)},
		{"ProposerIndex", ssz.ToLittleEndian(h.ProposerIndex)},
		{"ParentRoot", h.ParentRoot},
		{"StateRoot", h.StateRoot},
		{"BodyRoot", h.BodyRoot},
	}
	for _, f := range fields {
		if err := in.WriteBytes32(prefix+f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

func (in *Input) WriteG1PointAsBytes(name string, pubkey types.BLSPubkey) error {
	return in.set(name, bytesToSignals(pubkey[:]))
}

func (in *Input) WriteG1PointsAsBytes(name string, pubkeys []types.BLSPubkey) error {
	out := make([][]string, len(pubkeys))
	for i, pk := range pubkeys {
		out[i] = bytesToSignals(pk[:])
	}
	return in.set(name, out)
}

func (in *Input) WriteG1PointAsBigInt(name string, pubkey types.BLSPubkey) error {
	return in.set(name, limbsToSignals(G1PointToBigInt(pubkey)))
}

func (in *Input) WriteG1PointsAsBigInt(name string, pubkeys []types.BLSPubkey) error {
	out := make([][]string, len(pubkeys))
	for i, pk := range pubkeys {
		out[i] = limbsToSignals(G1PointToBigInt(pk))
	}
	return in.set(name, out)
}

// WriteG2Point decompresses a signature and writes [[x.c0,x.c1],[y.c0,y.c1]].
func (in *Input) WriteG2Point(name string, signature types.BLSSignature) error {
	coords, err := G2PointToBigInt(signature)
	if err != nil {
		return fmt.Errorf("circuit input %q: %w", name, err)
	}
	out := make([][][]string, 2)
	for i := range coords {
		out[i] = make([][]string, 2)
		for j := range coords[i] {
			out[i][j] = limbsToSignals(coords[i][j])
		}
	}
	return in.set(name, out)
}
