// Package consensus talks to a beacon node over the standard beacon HTTP API and
// assembles the consensus snapshots the circuits prove.
package consensus

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/kysee/zk-lightclient/deserialize"
	"github.com/kysee/zk-lightclient/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	routeHeader         = "/eth/v1/beacon/headers/%s"
	routeBlock          = "/eth/v2/beacon/blocks/%s"
	routeState          = "/eth/v2/debug/beacon/states/%s"
	routeGenesis        = "/eth/v1/beacon/genesis"
	routeFinalityUpdate = "/eth/v1/beacon/light_client/finality_update"
	routeUpdates        = "/eth/v1/beacon/light_client/updates"
)

// BeaconID names a block or state: a slot, a 0x-prefixed root, or one of the
// named tags.
type BeaconID string

const (
	Head      BeaconID = "head"
	Finalized BeaconID = "finalized"
	Justified BeaconID = "justified"
	Genesis   BeaconID = "genesis"
)

func SlotID(slot uint64) BeaconID {
	return BeaconID(strconv.FormatUint(slot, 10))
}

func RootID(root types.Root) BeaconID {
	return BeaconID("0x" + hex.EncodeToString(root[:]))
}

// Client implements the beacon API calls needed by the operator.
type Client struct {
	BaseURL string
	Client  *http.Client

	log zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		log:     logger.With().Str("component", "consensus").Logger(),
	}
}

func (c *Client) httpGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &types.NetworkError{Op: "GET", URL: endpoint.String(), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("url", endpoint.String()).Msg("beacon request")
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &types.NetworkError{Op: "GET", URL: endpoint.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.NetworkError{Op: "GET", URL: endpoint.String(), Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.NetworkError{
			Op:         "GET",
			URL:        endpoint.String(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}
	return body, nil
}

// GetHeader fetches the block header of id.
func (c *Client) GetHeader(ctx context.Context, id BeaconID) (types.BeaconBlockHeader, error) {
	body, err := c.httpGet(ctx, fmt.Sprintf(routeHeader, id), nil)
	if err != nil {
		return types.BeaconBlockHeader{}, err
	}
	v, err := deserialize.Envelope(body, "data", "header", "message")
	if err != nil {
		return types.BeaconBlockHeader{}, err
	}
	return deserialize.ReadBeaconBlockHeader(v, "data.header.message")
}

// GetBlock fetches and decodes the beacon block of id.
func (c *Client) GetBlock(ctx context.Context, id BeaconID) (*Block, error) {
	body, err := c.httpGet(ctx, fmt.Sprintf(routeBlock, id), nil)
	if err != nil {
		return nil, err
	}
	return DecodeBlock(body)
}

// GetState fetches and decodes the full beacon state of id.
func (c *Client) GetState(ctx context.Context, id BeaconID) (*State, error) {
	body, err := c.httpGet(ctx, fmt.Sprintf(routeState, id), nil)
	if err != nil {
		return nil, err
	}
	return DecodeState(body)
}

func (c *Client) GetGenesis(ctx context.Context) (types.Genesis, error) {
	body, err := c.httpGet(ctx, routeGenesis, nil)
	if err != nil {
		return types.Genesis{}, err
	}
	v, err := deserialize.Envelope(body, "data")
	if err != nil {
		return types.Genesis{}, err
	}
	return deserialize.ReadGenesis(v, "data")
}

// GetFinalityUpdate returns the node's latest light client finality update.
func (c *Client) GetFinalityUpdate(ctx context.Context) (*types.FinalityUpdate, error) {
	body, err := c.httpGet(ctx, routeFinalityUpdate, nil)
	if err != nil {
		return nil, err
	}
	v, err := deserialize.Envelope(body)
	if err != nil {
		return nil, err
	}
	return deserialize.ReadFinalityUpdate(v)
}

// GetUpdates returns count best light client updates starting at period.
func (c *Client) GetUpdates(ctx context.Context, period uint64, count int) ([]*types.LightClientUpdate, error) {
	query := url.Values{}
	query.Set("start_period", strconv.FormatUint(period, 10))
	query.Set("count", strconv.Itoa(count))

	body, err := c.httpGet(ctx, routeUpdates, query)
	if err != nil {
		return nil, err
	}
	v, err := deserialize.Envelope(body)
	if err != nil {
		return nil, err
	}
	return deserialize.ReadLightClientUpdates(v, count)
}
