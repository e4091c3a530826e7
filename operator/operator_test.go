package operator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	circuit "github.com/kysee/zk-lightclient/circuits"
	"github.com/kysee/zk-lightclient/consensus"
	optypes "github.com/kysee/zk-lightclient/operator/types"
	"github.com/kysee/zk-lightclient/types"
)

func newUpdate(finalizedSlot uint64, participation int) *types.TelepathyUpdate {
	u := &types.TelepathyUpdate{
		FinalityBranch:          make([]types.Root, types.FinalityBranchDepth),
		NextSyncCommitteeBranch: make([]types.Root, types.SyncCommitteeBranchDepth),
		ExecutionStateBranch:    make([]types.Root, types.ExecutionStateBranchDepth),
		ExecutionStateRoot:      types.Root{0x22},
	}
	u.AttestedHeader.Slot = finalizedSlot + 64
	u.FinalizedHeader.Slot = finalizedSlot
	for i := 0; i < participation; i++ {
		u.SyncAggregate.SyncCommitteeBits[i/8] |= 1 << (i % 8)
	}
	return u
}

func slotInPeriod(period uint64) uint64 {
	return period*types.SlotsPerPeriod + 100
}

type fakeSource struct {
	latest   *types.TelepathyUpdate
	byPeriod map[uint64]*types.TelepathyUpdate
}

func (s *fakeSource) GetHeader(_ context.Context, _ consensus.BeaconID) (types.BeaconBlockHeader, error) {
	return s.latest.FinalizedHeader, nil
}

func (s *fakeSource) GetTelepathyUpdate(_ context.Context, _ consensus.BeaconID) (*types.TelepathyUpdate, error) {
	return s.latest, nil
}

func (s *fakeSource) GetFinalizedTelepathyUpdateInPeriod(_ context.Context, period uint64) (*types.TelepathyUpdate, error) {
	if u, ok := s.byPeriod[period]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("period %d: %w", period, types.ErrNoFinalizedUpdate)
}

// fakeProver records the finalized slot of every snapshot it proves.
type fakeProver struct {
	mtx    sync.Mutex
	slots  []uint64
	failOn error
}

func (p *fakeProver) CalculateInputs(update *types.TelepathyUpdate) (*circuit.Input, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.slots = append(p.slots, update.FinalizedHeader.Slot)
	return circuit.NewInput(), nil
}

func (p *fakeProver) CalculateWitness(_ context.Context, input *circuit.Input) (*circuit.Witness, error) {
	return &circuit.Witness{Input: input}, nil
}

func (p *fakeProver) Prove(context.Context, *circuit.Witness) (*circuit.Groth16Proof, error) {
	if p.failOn != nil {
		return nil, p.failOn
	}
	n := func(v int64) *big.Int { return big.NewInt(v) }
	return &circuit.Groth16Proof{
		A: [2]*big.Int{n(1), n(2)},
		B: [2][2]*big.Int{{n(3), n(4)}, {n(5), n(6)}},
		C: [2]*big.Int{n(7), n(8)},
	}, nil
}

type fakeDestination struct {
	name string

	mtx       sync.Mutex
	head      uint64
	poseidons map[uint64]types.Root
	steps     []uint64
	rotates   []uint64
	mined     int
	stepErr   error
}

func newFakeDestination(name string, head uint64) *fakeDestination {
	return &fakeDestination{name: name, head: head, poseidons: make(map[uint64]types.Root)}
}

func (d *fakeDestination) Name() string { return d.name }

func (d *fakeDestination) Head(context.Context) (uint64, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.head, nil
}

func (d *fakeDestination) SyncCommitteePoseidon(_ context.Context, period uint64) (types.Root, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.poseidons[period], nil
}

func (d *fakeDestination) tx() *gethtypes.Transaction {
	return gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: uint64(len(d.steps) + len(d.rotates))})
}

func (d *fakeDestination) Step(_ context.Context, payload *optypes.StepPayload) (*gethtypes.Transaction, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.stepErr != nil {
		return nil, &types.SubmissionError{Target: d.name, Op: "step", Err: d.stepErr}
	}
	d.steps = append(d.steps, payload.FinalizedSlot)
	d.head = payload.FinalizedSlot
	return d.tx(), nil
}

func (d *fakeDestination) Rotate(_ context.Context, payload *optypes.RotatePayload) (*gethtypes.Transaction, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.rotates = append(d.rotates, types.Period(payload.Step.FinalizedSlot))
	d.poseidons[payload.NextPeriod()] = payload.SyncCommitteePoseidon
	return d.tx(), nil
}

func (d *fakeDestination) WaitMined(context.Context, *gethtypes.Transaction) (*gethtypes.Receipt, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.mined++
	return &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}, nil
}

func (d *fakeDestination) minedCount() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.mined
}

func newTestOperator(source optypes.ConsensusSource, step, rotate *fakeProver, dataDir string, targets ...*fakeDestination) *Operator {
	dests := make([]optypes.Destination, len(targets))
	for i, t := range targets {
		dests[i] = t
	}
	return New(source, step, rotate, dests, Options{DataDir: dataDir, StepInterval: time.Hour}, zerolog.Nop())
}

func TestTickQuorum(t *testing.T) {
	dest := newFakeDestination("a", slotInPeriod(9))
	dest.poseidons[10] = types.Root{0x01}
	step, rotate := &fakeProver{}, &fakeProver{}

	source := &fakeSource{latest: newUpdate(slotInPeriod(9), 341)}
	op := newTestOperator(source, step, rotate, "", dest)
	err := op.Tick(context.Background())
	require.ErrorIs(t, err, types.ErrQuorumInsufficient)
	require.Empty(t, step.slots)
	require.Empty(t, dest.steps)

	source.latest = newUpdate(slotInPeriod(9), 342)
	require.NoError(t, op.Tick(context.Background()))
	require.Equal(t, []uint64{slotInPeriod(9)}, dest.steps)
	require.Empty(t, dest.rotates)
	require.Empty(t, rotate.slots)
}

func TestTickRotatesOnlyWhereCommitteeIsMissing(t *testing.T) {
	withCommittee := newFakeDestination("with", slotInPeriod(9))
	withCommittee.poseidons[10] = types.Root{0x01}
	without := newFakeDestination("without", slotInPeriod(9))

	source := &fakeSource{latest: newUpdate(slotInPeriod(9), 400)}
	step, rotate := &fakeProver{}, &fakeProver{}
	op := newTestOperator(source, step, rotate, "", withCommittee, without)
	require.NoError(t, op.Tick(context.Background()))

	require.Len(t, withCommittee.steps, 1)
	require.Len(t, without.steps, 1)
	require.Empty(t, withCommittee.rotates)
	require.Equal(t, []uint64{9}, without.rotates)
	require.Equal(t, types.Root{0x01}, withCommittee.poseidons[10])
	require.NotEqual(t, types.Root{}, without.poseidons[10])

	// One step proof for the tick and one nested in the rotate payload.
	require.Len(t, step.slots, 2)
	require.Len(t, rotate.slots, 1)
}

func TestSubmissionFailureIsIsolated(t *testing.T) {
	broken := newFakeDestination("broken", 0)
	broken.stepErr = errors.New("nonce too low")
	healthy := newFakeDestination("healthy", 0)

	op := newTestOperator(&fakeSource{}, &fakeProver{}, &fakeProver{}, "", broken, healthy)
	errs := op.submitStep(context.Background(), &optypes.StepPayload{FinalizedSlot: 42})
	require.Len(t, errs, 2)

	var subErr *types.SubmissionError
	require.ErrorAs(t, errs[0], &subErr)
	require.Equal(t, "broken", subErr.Target)
	require.NoError(t, errs[1])
	require.Equal(t, []uint64{42}, healthy.steps)
}

func TestTickProverFailure(t *testing.T) {
	dest := newFakeDestination("a", slotInPeriod(9))
	step := &fakeProver{failOn: &types.ExternalProcessError{Executable: "prover", Err: errors.New("exit status 1")}}
	op := newTestOperator(&fakeSource{latest: newUpdate(slotInPeriod(9), 400)}, step, &fakeProver{}, "", dest)

	err := op.Tick(context.Background())
	var procErr *types.ExternalProcessError
	require.ErrorAs(t, err, &procErr)
	require.Empty(t, dest.steps)
	require.Empty(t, dest.rotates)
}

func TestSyncCatchesUpInOrder(t *testing.T) {
	dir := t.TempDir()
	source := consensus.NewFileSource(filepath.Join(dir, "replay"))
	for period := uint64(5); period <= 9; period++ {
		_, err := source.Record(newUpdate(slotInPeriod(period), 400))
		require.NoError(t, err)
	}

	// Committees for periods 5 and 7 are stored but 6 is not, so the walk
	// stops at 5.
	dest := newFakeDestination("a", slotInPeriod(4))
	dest.poseidons[5] = types.Root{0x05}
	dest.poseidons[7] = types.Root{0x07}

	step, rotate := &fakeProver{}, &fakeProver{}
	op := newTestOperator(source, step, rotate, filepath.Join(dir, "data"), dest)
	require.Equal(t, Syncing, op.State())
	require.NoError(t, op.Sync(context.Background()))
	require.Equal(t, SteadyState, op.State())

	// Period 7 already holds the committee installed by a period 6 rotate.
	require.Equal(t, []uint64{5, 7, 8}, dest.rotates)
	require.Equal(t, []uint64{slotInPeriod(5), slotInPeriod(6), slotInPeriod(7), slotInPeriod(8)}, rotate.slots)
	require.NotEqual(t, types.Root{}, dest.poseidons[9])

	for period := uint64(5); period <= 8; period++ {
		require.FileExists(t, filepath.Join(dir, "data", fmt.Sprintf("rotate_%d.json", slotInPeriod(period))))
	}
}

func TestSyncMissingPeriod(t *testing.T) {
	dest := newFakeDestination("a", slotInPeriod(4))
	source := &fakeSource{
		latest: newUpdate(slotInPeriod(7), 400),
		byPeriod: map[uint64]*types.TelepathyUpdate{
			5: newUpdate(slotInPeriod(5), 400),
		},
	}
	op := newTestOperator(source, &fakeProver{}, &fakeProver{}, "", dest)
	err := op.Sync(context.Background())
	require.ErrorIs(t, err, types.ErrNoFinalizedUpdate)
	require.Equal(t, []uint64{5}, dest.rotates)
	require.Equal(t, Syncing, op.State())
}

func TestSyncUsesOldestDestination(t *testing.T) {
	ahead := newFakeDestination("ahead", slotInPeriod(7))
	behind := newFakeDestination("behind", slotInPeriod(5))
	ahead.poseidons[7] = types.Root{0x07}

	source := &fakeSource{
		latest: newUpdate(slotInPeriod(8), 400),
		byPeriod: map[uint64]*types.TelepathyUpdate{
			6: newUpdate(slotInPeriod(6), 400),
			7: newUpdate(slotInPeriod(7), 400),
		},
	}
	op := newTestOperator(source, &fakeProver{}, &fakeProver{}, "", ahead, behind)
	require.NoError(t, op.Sync(context.Background()))
	require.Equal(t, []uint64{7}, ahead.rotates)
	require.Equal(t, []uint64{6, 7}, behind.rotates)
}

func TestArtifactsWritten(t *testing.T) {
	dir := t.TempDir()
	update := newUpdate(slotInPeriod(9), 400)
	dest := newFakeDestination("a", slotInPeriod(9))
	op := newTestOperator(&fakeSource{latest: update}, &fakeProver{}, &fakeProver{}, dir, dest)
	require.NoError(t, op.Tick(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("rotate_%d.json", update.FinalizedHeader.Slot)))
	require.NoError(t, err)
	var rotate optypes.RotatePayload
	require.NoError(t, json.Unmarshal(data, &rotate))
	require.Equal(t, update.FinalizedHeader.Slot, rotate.Step.FinalizedSlot)
	require.Equal(t, uint64(400), rotate.Step.Participation)
	require.Equal(t, types.Root{0x22}, rotate.Step.ExecutionStateRoot)
	require.Equal(t, dest.poseidons[10], rotate.SyncCommitteePoseidon)
	require.Equal(t, "4", rotate.Proof.B[0][1].String())

	data, err = os.ReadFile(filepath.Join(dir, fmt.Sprintf("step_%d.json", update.FinalizedHeader.Slot)))
	require.NoError(t, err)
	var step optypes.StepPayload
	require.NoError(t, json.Unmarshal(data, &step))
	require.Equal(t, update.FinalizedHeader.Slot, step.FinalizedSlot)
}

func TestRunHealthCheckFailure(t *testing.T) {
	op := newTestOperator(&fakeSource{}, &fakeProver{}, &fakeProver{}, "")
	op.opts.HealthCheck = func(context.Context) error { return errors.New("wrong network") }
	err := op.Run(context.Background())
	require.ErrorContains(t, err, "wrong network")
}

func TestRunStopsOnCancel(t *testing.T) {
	dest := newFakeDestination("a", slotInPeriod(9))
	dest.poseidons[10] = types.Root{0x01}
	op := newTestOperator(&fakeSource{latest: newUpdate(slotInPeriod(9), 400)}, &fakeProver{}, &fakeProver{}, "", dest)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, op.Run(ctx))
	require.Equal(t, SteadyState, op.State())
	require.Len(t, dest.steps, 1)
}

func TestReceiptsWatched(t *testing.T) {
	dest := newFakeDestination("a", 0)
	op := newTestOperator(&fakeSource{}, &fakeProver{}, &fakeProver{}, "", dest)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go op.WatchReceipts(ctx)

	op.submitStep(ctx, &optypes.StepPayload{FinalizedSlot: 1})
	op.submitStep(ctx, &optypes.StepPayload{FinalizedSlot: 2})
	require.Eventually(t, func() bool { return dest.minedCount() == 2 }, time.Second, 10*time.Millisecond)
}

func TestTickSignatureCheckDropsTick(t *testing.T) {
	dest := newFakeDestination("a", slotInPeriod(9))
	step := &fakeProver{}
	op := newTestOperator(&fakeSource{latest: newUpdate(slotInPeriod(9), 400)}, step, &fakeProver{}, "", dest)
	op.opts.VerifySignatures = true

	require.Error(t, op.Tick(context.Background()))
	require.Empty(t, step.slots)
	require.Empty(t, dest.steps)
}
