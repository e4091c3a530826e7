package destination

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/params"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	optypes "github.com/kysee/zk-lightclient/operator/types"
)

const polygonChainID = 137

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Fees are the transaction options for one submission. Either the EIP-1559
// caps or GasLimit are set, never both.
type Fees struct {
	GasFeeCap *big.Int
	GasTipCap *big.Int
	GasLimit  uint64
}

type gasStationResponse struct {
	Fast struct {
		MaxFee         float64 `json:"maxFee"`
		MaxPriorityFee float64 `json:"maxPriorityFee"`
	} `json:"fast"`
}

// FeeEstimator picks fees per destination chain. Polygon fees come from the
// gas station and fall back to fixed defaults; other chains only get a gas
// limit.
type FeeEstimator struct {
	cfg    optypes.FeeConfig
	client *http.Client
	log    zerolog.Logger
}

func NewFeeEstimator(cfg optypes.FeeConfig, logger zerolog.Logger) *FeeEstimator {
	return &FeeEstimator{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger.With().Str("component", "fees").Logger(),
	}
}

func gwei(v uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(v), big.NewInt(params.GWei))
}

// Estimate never fails.
func (f *FeeEstimator) Estimate(ctx context.Context, chainID uint64) Fees {
	if chainID != polygonChainID {
		return Fees{GasLimit: f.cfg.GasLimit}
	}
	fees := Fees{
		GasFeeCap: gwei(f.cfg.DefaultMaxFeeGwei),
		GasTipCap: gwei(f.cfg.DefaultPriorityFeeGwei),
	}
	station, err := f.gasStation(ctx)
	if err != nil {
		f.log.Warn().Err(err).Msg("gas station unavailable, using default fees")
		return fees
	}
	if station.Fast.MaxFee > 0 && station.Fast.MaxPriorityFee > 0 {
		fees.GasFeeCap = gwei(uint64(math.Ceil(station.Fast.MaxFee)))
		fees.GasTipCap = gwei(uint64(math.Ceil(station.Fast.MaxPriorityFee)))
	}
	return fees
}

func (f *FeeEstimator) gasStation(ctx context.Context) (*gasStationResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.GasStationURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gas station status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out gasStationResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
