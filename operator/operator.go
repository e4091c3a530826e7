// Package operator keeps destination light clients in sync with the beacon
// chain by proving and submitting step and rotate updates.
package operator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/kysee/zk-lightclient/consensus"
	optypes "github.com/kysee/zk-lightclient/operator/types"
	"github.com/kysee/zk-lightclient/ssz"
	"github.com/kysee/zk-lightclient/types"
)

type State int

const (
	Syncing State = iota
	SteadyState
)

func (s State) String() string {
	switch s {
	case Syncing:
		return "syncing"
	case SteadyState:
		return "steady"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Options struct {
	DataDir          string
	StepInterval     time.Duration
	VerifySignatures bool
	// HealthCheck runs once at the start of Run.
	HealthCheck func(ctx context.Context) error
}

type Operator struct {
	source  optypes.ConsensusSource
	step    optypes.Prover
	rotate  optypes.Prover
	targets []optypes.Destination
	opts    Options

	state    State
	receipts *receiptWatcher
	log      zerolog.Logger
}

func New(source optypes.ConsensusSource, step, rotate optypes.Prover, targets []optypes.Destination, opts Options, logger zerolog.Logger) *Operator {
	log := logger.With().Str("component", "operator").Logger()
	return &Operator{
		source:   source,
		step:     step,
		rotate:   rotate,
		targets:  targets,
		opts:     opts,
		state:    Syncing,
		receipts: newReceiptWatcher(log),
		log:      log,
	}
}

func (o *Operator) State() State { return o.state }

// WatchReceipts logs the receipts of submitted transactions until ctx is done.
func (o *Operator) WatchReceipts(ctx context.Context) {
	o.receipts.run(ctx)
}

// Run checks the beacon node, catches every destination up, runs a tick
// immediately and then one every StepInterval until ctx is done.
func (o *Operator) Run(ctx context.Context) error {
	go o.WatchReceipts(ctx)

	if o.opts.HealthCheck != nil {
		if err := o.opts.HealthCheck(ctx); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
	}
	if err := o.Sync(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	o.runTick(ctx)
	ticker := time.NewTicker(o.opts.StepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.runTick(ctx)
		case <-ctx.Done():
			o.log.Info().Msg("operator stopped")
			return nil
		}
	}
}

func (o *Operator) runTick(ctx context.Context) {
	start := time.Now()
	err := o.Tick(ctx)
	switch {
	case err == nil:
		o.log.Info().Dur("elapsed", time.Since(start)).Msg("tick finished")
	case errors.Is(err, types.ErrQuorumInsufficient):
		o.log.Info().Msg("tick skipped, not enough participation")
	default:
		o.log.Error().Err(err).Msg("tick failed")
	}
}

// Sync rotates every destination up to the current sync committee. It
// fails when a period in the range has no finalized update.
func (o *Operator) Sync(ctx context.Context) error {
	o.state = Syncing
	o.log.Info().Msg("syncing all light clients to the current sync committee")

	latest, err := o.source.GetHeader(ctx, consensus.Finalized)
	if err != nil {
		return fmt.Errorf("failed to fetch finalized header: %w", err)
	}
	latestPeriod := types.Period(latest.Slot)
	o.log.Info().Uint64("period", latestPeriod).Msg("current sync committee period")

	oldestPeriod := uint64(math.MaxUint64)
	for _, target := range o.targets {
		current, err := o.storedPeriod(ctx, target, latestPeriod)
		if err != nil {
			return err
		}
		o.log.Info().Str("target", target.Name()).Uint64("period", current).Msg("light client has sync committee")
		if current < oldestPeriod {
			oldestPeriod = current
		}
	}

	for period := oldestPeriod; period < latestPeriod; period++ {
		o.log.Info().Uint64("period", period).Msg("syncing light clients to period")
		update, err := o.source.GetFinalizedTelepathyUpdateInPeriod(ctx, period)
		if err != nil {
			return fmt.Errorf("period %d: %w", period, err)
		}
		if err := o.doRotate(ctx, update); err != nil {
			return fmt.Errorf("period %d: %w", period, err)
		}
	}

	o.state = SteadyState
	return nil
}

// storedPeriod walks the contract's commitments upwards from the period after
// its head and returns the last period before the first empty one.
func (o *Operator) storedPeriod(ctx context.Context, target optypes.Destination, latestPeriod uint64) (uint64, error) {
	head, err := target.Head(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s head: %w", target.Name(), err)
	}
	lower := types.Period(head) + 1
	current := lower
	for i := lower; i <= latestPeriod; i++ {
		commitment, err := target.SyncCommitteePoseidon(ctx, i)
		if err != nil {
			return 0, fmt.Errorf("%s sync committee %d: %w", target.Name(), i, err)
		}
		if commitment == (types.Root{}) {
			break
		}
		current = i
	}
	return current, nil
}

// Tick steps every destination with the latest finalized snapshot and
// rotates when a destination lacks the next committee. A snapshot without
// quorum returns ErrQuorumInsufficient and changes nothing.
func (o *Operator) Tick(ctx context.Context) error {
	o.log.Info().Msg("getting telepathy update from consensus client")
	update, err := o.source.GetTelepathyUpdate(ctx, consensus.Finalized)
	if err != nil {
		return fmt.Errorf("failed to fetch finalized update: %w", err)
	}

	participation := ssz.ComputeBitSum(update.SyncAggregate.SyncCommitteeBits)
	if !types.HasQuorum(participation) {
		o.log.Info().Uint64("participation", participation).Msg("skipping tick, not enough participation")
		return types.ErrQuorumInsufficient
	}
	if o.opts.VerifySignatures {
		if err := verifySignature(update); err != nil {
			return err
		}
	}

	rotate := o.needsRotate(ctx, types.Period(update.AttestedHeader.Slot)+1)

	if err := o.doStep(ctx, update); err != nil {
		return err
	}
	if rotate {
		return o.doRotate(ctx, update)
	}
	return nil
}

func (o *Operator) needsRotate(ctx context.Context, nextPeriod uint64) bool {
	for _, target := range o.targets {
		commitment, err := target.SyncCommitteePoseidon(ctx, nextPeriod)
		if err != nil {
			o.log.Warn().Err(err).Str("target", target.Name()).Uint64("period", nextPeriod).Msg("failed to read sync committee")
			continue
		}
		if commitment == (types.Root{}) {
			return true
		}
	}
	return false
}

func verifySignature(update *types.TelepathyUpdate) error {
	domain := ssz.ComputeDomain(update.ForkData.CurrentVersion, update.ForkData.GenesisValidatorsRoot)
	signingRoot := ssz.ComputeSigningRoot(ssz.HashBeaconBlockHeader(&update.AttestedHeader), domain)
	if err := types.VerifySyncAggregate(&update.CurrentSyncCommittee, &update.SyncAggregate, signingRoot); err != nil {
		return fmt.Errorf("attested slot %d: %w", update.AttestedHeader.Slot, err)
	}
	return nil
}

func (o *Operator) doStep(ctx context.Context, update *types.TelepathyUpdate) error {
	o.log.Info().Msg("creating step update")
	payload, err := o.createStepPayload(ctx, update)
	if err != nil {
		return err
	}
	o.log.Info().Msg("sending step update to all light clients")
	o.submitStep(ctx, payload)
	return nil
}

func (o *Operator) doRotate(ctx context.Context, update *types.TelepathyUpdate) error {
	o.log.Info().Msg("creating rotate update")
	payload, err := o.createRotatePayload(ctx, update)
	if err != nil {
		return err
	}
	o.log.Info().Msg("sending rotate update to compatible light clients")
	o.submitRotate(ctx, payload)
	return nil
}
