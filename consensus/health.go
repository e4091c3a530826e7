package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/attestantio/go-eth2-client/api"
	eth2http "github.com/attestantio/go-eth2-client/http"
	"github.com/rs/zerolog"

	"github.com/kysee/zk-lightclient/types"
)

// Health checks that the beacon node is usable before the operator starts.
type Health struct {
	Address string
	Timeout time.Duration

	log zerolog.Logger
}

func NewHealth(address string, timeout time.Duration, logger zerolog.Logger) *Health {
	return &Health{
		Address: address,
		Timeout: timeout,
		log:     logger.With().Str("component", "health").Logger(),
	}
}

// Check fails when the node is still syncing or reports a genesis other than
// expected.
func (h *Health) Check(ctx context.Context, expected types.Genesis) error {
	client, err := eth2http.New(ctx,
		eth2http.WithAddress(h.Address),
		eth2http.WithTimeout(h.Timeout),
		eth2http.WithLogLevel(zerolog.WarnLevel),
	)
	if err != nil {
		return &types.NetworkError{Op: "connect", URL: h.Address, Err: err}
	}
	service := client.(*eth2http.Service)

	syncing, err := service.NodeSyncing(ctx, &api.NodeSyncingOpts{})
	if err != nil {
		return &types.NetworkError{Op: "node syncing", URL: h.Address, Err: err}
	}
	if syncing.Data.IsSyncing {
		return fmt.Errorf("beacon node %s is syncing, distance %d slots", h.Address, syncing.Data.SyncDistance)
	}

	genesis, err := service.Genesis(ctx, &api.GenesisOpts{})
	if err != nil {
		return &types.NetworkError{Op: "genesis", URL: h.Address, Err: err}
	}
	if types.Root(genesis.Data.GenesisValidatorsRoot) != expected.GenesisValidatorsRoot {
		return &types.InvariantViolation{What: fmt.Sprintf("beacon node genesis validators root %#x differs from %#x",
			genesis.Data.GenesisValidatorsRoot[:], expected.GenesisValidatorsRoot[:])}
	}

	h.log.Info().
		Uint64("headSlot", uint64(syncing.Data.HeadSlot)).
		Time("genesisTime", genesis.Data.GenesisTime).
		Msg("beacon node healthy")
	return nil
}
