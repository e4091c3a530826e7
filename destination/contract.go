// Package destination talks to the light client contract deployed on each
// destination chain.
package destination

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	circuit "github.com/kysee/zk-lightclient/circuits"
	optypes "github.com/kysee/zk-lightclient/operator/types"
	"github.com/kysee/zk-lightclient/types"
)

const proofComponents = `[
	{"name":"a","type":"uint256[2]"},
	{"name":"b","type":"uint256[2][2]"},
	{"name":"c","type":"uint256[2]"}
]`

const stepComponents = `[
	{"name":"finalizedSlot","type":"uint256"},
	{"name":"participation","type":"uint256"},
	{"name":"finalizedHeaderRoot","type":"bytes32"},
	{"name":"executionStateRoot","type":"bytes32"},
	{"name":"proof","type":"tuple","components":` + proofComponents + `}
]`

// LightClientABI covers the methods the operator uses.
const LightClientABI = `[
	{"type":"function","name":"step","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"update","type":"tuple","components":` + stepComponents + `}]},
	{"type":"function","name":"rotate","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"update","type":"tuple","components":[
		{"name":"step","type":"tuple","components":` + stepComponents + `},
		{"name":"syncCommitteeSSZ","type":"bytes32"},
		{"name":"syncCommitteePoseidon","type":"bytes32"},
		{"name":"proof","type":"tuple","components":` + proofComponents + `}
	 ]}]},
	{"type":"function","name":"head","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"syncCommitteePoseidons","stateMutability":"view",
	 "inputs":[{"name":"period","type":"uint256"}],
	 "outputs":[{"name":"","type":"bytes32"}]}
]`

// Groth16Proof, LightClientStep and LightClientRotate mirror the contract
// structs for ABI packing.
type Groth16Proof struct {
	A [2]*big.Int
	B [2][2]*big.Int
	C [2]*big.Int
}

type LightClientStep struct {
	FinalizedSlot       *big.Int
	Participation       *big.Int
	FinalizedHeaderRoot [32]byte
	ExecutionStateRoot  [32]byte
	Proof               Groth16Proof
}

type LightClientRotate struct {
	Step                  LightClientStep
	SyncCommitteeSSZ      [32]byte
	SyncCommitteePoseidon [32]byte
	Proof                 Groth16Proof
}

func toProof(p *circuit.Groth16Proof) Groth16Proof {
	return Groth16Proof{A: p.A, B: p.B, C: p.C}
}

func ToLightClientStep(p *optypes.StepPayload) LightClientStep {
	return LightClientStep{
		FinalizedSlot:       new(big.Int).SetUint64(p.FinalizedSlot),
		Participation:       new(big.Int).SetUint64(p.Participation),
		FinalizedHeaderRoot: p.FinalizedHeaderRoot,
		ExecutionStateRoot:  p.ExecutionStateRoot,
		Proof:               toProof(&p.Proof),
	}
}

func ToLightClientRotate(p *optypes.RotatePayload) LightClientRotate {
	return LightClientRotate{
		Step:                  ToLightClientStep(&p.Step),
		SyncCommitteeSSZ:      p.SyncCommitteeSSZ,
		SyncCommitteePoseidon: p.SyncCommitteePoseidon,
		Proof:                 toProof(&p.Proof),
	}
}

// Backend is what a LightClient needs from an execution client.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// LightClient is a destination contract bound to one chain and signing key.
type LightClient struct {
	name     string
	chainID  *big.Int
	address  common.Address
	backend  Backend
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	fees     *FeeEstimator

	log zerolog.Logger
}

var _ optypes.Destination = (*LightClient)(nil)

func NewLightClient(target optypes.TargetConfig, backend Backend, key *ecdsa.PrivateKey, fees *FeeEstimator, logger zerolog.Logger) (*LightClient, error) {
	parsed, err := abi.JSON(strings.NewReader(LightClientABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse light client ABI: %w", err)
	}
	address := common.HexToAddress(target.Address)
	return &LightClient{
		name:     target.Name,
		chainID:  new(big.Int).SetUint64(target.ChainID),
		address:  address,
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		key:      key,
		fees:     fees,
		log:      logger.With().Str("component", "destination").Str("target", target.Name).Logger(),
	}, nil
}

// Dial connects to the target's execution RPC and checks its chain id.
func Dial(ctx context.Context, target optypes.TargetConfig, key *ecdsa.PrivateKey, fees *FeeEstimator, logger zerolog.Logger) (*LightClient, error) {
	client, err := ethclient.DialContext(ctx, target.ExecutionRPCURL)
	if err != nil {
		return nil, &types.NetworkError{Op: "dial", URL: target.ExecutionRPCURL, Err: err}
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, &types.NetworkError{Op: "chain id", URL: target.ExecutionRPCURL, Err: err}
	}
	if chainID.Uint64() != target.ChainID {
		return nil, fmt.Errorf("%s: rpc reports chain id %s, configured %d", target.Name, chainID, target.ChainID)
	}
	return NewLightClient(target, client, key, fees, logger)
}

func (c *LightClient) Name() string { return c.name }

func (c *LightClient) Head(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "head"); err != nil {
		return 0, &types.NetworkError{Op: "head", URL: c.name, Err: err}
	}
	head := *abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	if !head.IsUint64() {
		return 0, &types.InvariantViolation{What: fmt.Sprintf("%s head %s overflows a slot", c.name, head.String())}
	}
	return head.Uint64(), nil
}

func (c *LightClient) SyncCommitteePoseidon(ctx context.Context, period uint64) (types.Root, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "syncCommitteePoseidons", new(big.Int).SetUint64(period))
	if err != nil {
		return types.Root{}, &types.NetworkError{Op: "syncCommitteePoseidons", URL: c.name, Err: err}
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

func (c *LightClient) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	fees := c.fees.Estimate(ctx, c.chainID.Uint64())
	opts.GasFeeCap = fees.GasFeeCap
	opts.GasTipCap = fees.GasTipCap
	opts.GasLimit = fees.GasLimit
	return opts, nil
}

func (c *LightClient) Step(ctx context.Context, payload *optypes.StepPayload) (*gethtypes.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, &types.SubmissionError{Target: c.name, Op: "step", Err: err}
	}
	tx, err := c.contract.Transact(opts, "step", ToLightClientStep(payload))
	if err != nil {
		return nil, &types.SubmissionError{Target: c.name, Op: "step", Err: err}
	}
	c.log.Info().Uint64("finalizedSlot", payload.FinalizedSlot).Str("tx", tx.Hash().Hex()).Msg("step sent")
	return tx, nil
}

func (c *LightClient) Rotate(ctx context.Context, payload *optypes.RotatePayload) (*gethtypes.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, &types.SubmissionError{Target: c.name, Op: "rotate", Err: err}
	}
	tx, err := c.contract.Transact(opts, "rotate", ToLightClientRotate(payload))
	if err != nil {
		return nil, &types.SubmissionError{Target: c.name, Op: "rotate", Err: err}
	}
	c.log.Info().Uint64("finalizedSlot", payload.Step.FinalizedSlot).Str("tx", tx.Hash().Hex()).Msg("rotate sent")
	return tx, nil
}

func (c *LightClient) WaitMined(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error) {
	return bind.WaitMined(ctx, c.backend, tx)
}
