package operator

import (
	"context"
	"sync"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	optypes "github.com/kysee/zk-lightclient/operator/types"
	"github.com/kysee/zk-lightclient/types"
)

const (
	receiptQueueSize = 64
	receiptTimeout   = 10 * time.Minute
)

// submitStep sends the payload to every destination concurrently. A failing
// destination is logged and does not affect the others. The returned slice
// holds the error per destination, in target order.
func (o *Operator) submitStep(ctx context.Context, payload *optypes.StepPayload) []error {
	return o.fanOut(ctx, "step", func(ctx context.Context, target optypes.Destination) (*gethtypes.Transaction, error) {
		return target.Step(ctx, payload)
	})
}

// submitRotate is submitStep for rotates, skipping destinations that already
// store the next committee at the time of sending.
func (o *Operator) submitRotate(ctx context.Context, payload *optypes.RotatePayload) []error {
	next := payload.NextPeriod()
	return o.fanOut(ctx, "rotate", func(ctx context.Context, target optypes.Destination) (*gethtypes.Transaction, error) {
		commitment, err := target.SyncCommitteePoseidon(ctx, next)
		if err != nil {
			return nil, err
		}
		if commitment != (types.Root{}) {
			o.log.Info().Str("target", target.Name()).Uint64("period", next).Msg("sync committee already set, skipping rotate")
			return nil, nil
		}
		return target.Rotate(ctx, payload)
	})
}

func (o *Operator) fanOut(ctx context.Context, op string, send func(context.Context, optypes.Destination) (*gethtypes.Transaction, error)) []error {
	errs := make([]error, len(o.targets))
	var g errgroup.Group
	for i, target := range o.targets {
		i, target := i, target
		g.Go(func() error {
			tx, err := send(ctx, target)
			if err != nil {
				errs[i] = err
				o.log.Error().Err(err).Str("target", target.Name()).Str("op", op).Msg("submission failed")
				return nil
			}
			if tx != nil {
				o.receipts.enqueue(pendingTx{target: target, op: op, tx: tx})
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

type pendingTx struct {
	target optypes.Destination
	op     string
	tx     *gethtypes.Transaction
}

// receiptWatcher logs the outcome of submitted transactions without holding
// up the tick that sent them.
type receiptWatcher struct {
	queue chan pendingTx
	wg    sync.WaitGroup
	log   zerolog.Logger
}

func newReceiptWatcher(logger zerolog.Logger) *receiptWatcher {
	return &receiptWatcher{
		queue: make(chan pendingTx, receiptQueueSize),
		log:   logger,
	}
}

// enqueue drops the transaction when nobody is draining the queue.
func (w *receiptWatcher) enqueue(p pendingTx) {
	select {
	case w.queue <- p:
	default:
		w.log.Warn().Str("target", p.target.Name()).Str("tx", p.tx.Hash().Hex()).Msg("receipt queue full, not watching transaction")
	}
}

func (w *receiptWatcher) run(ctx context.Context) {
	defer w.wg.Wait()
	for {
		select {
		case p := <-w.queue:
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.wait(ctx, p)
			}()
		case <-ctx.Done():
			return
		}
	}
}

func (w *receiptWatcher) wait(ctx context.Context, p pendingTx) {
	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	log := w.log.With().Str("target", p.target.Name()).Str("op", p.op).Str("tx", p.tx.Hash().Hex()).Logger()
	receipt, err := p.target.WaitMined(ctx, p.tx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to get receipt")
		return
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		log.Error().Uint64("gasUsed", receipt.GasUsed).Msg("transaction reverted")
		return
	}
	log.Info().Uint64("gasUsed", receipt.GasUsed).Msg("transaction confirmed")
}
