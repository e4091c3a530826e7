package types

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	circuit "github.com/kysee/zk-lightclient/circuits"
	"github.com/kysee/zk-lightclient/types"
)

const (
	DefaultStepInterval  = 360 * time.Second
	DefaultBeaconTimeout = 30 * time.Second
	DefaultGasStationURL = "https://gasstation-mainnet.matic.network/v2"
	DefaultGasLimit      = 2_000_000
	DefaultFeeGwei       = 40
)

// TargetConfig is one destination light client contract.
type TargetConfig struct {
	Name            string `toml:"name"`
	ChainID         uint64 `toml:"chainId"`
	Address         string `toml:"address"`
	ExecutionRPCURL string `toml:"executionRpcUrl"`
}

type FeeConfig struct {
	GasStationURL          string `toml:"gasStationUrl"`
	DefaultMaxFeeGwei      uint64 `toml:"defaultMaxFeeGwei"`
	DefaultPriorityFeeGwei uint64 `toml:"defaultPriorityFeeGwei"`
	GasLimit               uint64 `toml:"gasLimit"`
}

// Config holds the operator configuration
type Config struct {
	ConsensusRPCURL string `toml:"consensusRpcUrl"`
	// Seconds between two ticks.
	StepInterval  uint64 `toml:"stepInterval"`
	BeaconTimeout uint64 `toml:"beaconTimeout"`

	// DataDir receives step_<slot>.json and rotate_<slot>.json.
	DataDir string `toml:"dataDir"`
	// WorkDir holds circuit inputs, witnesses and proofs.
	WorkDir string `toml:"workDir"`
	// ReplayDir, when set, serves recorded snapshots instead of the beacon node.
	ReplayDir string `toml:"replayDir"`

	VerifySignatures bool `toml:"verifySignatures"`
	// GenesisValidatorsRoot is cross-checked against the beacon node at start.
	GenesisValidatorsRoot types.HexBytes `toml:"genesisValidatorsRoot"`

	Step    circuit.Config `toml:"step"`
	Rotate  circuit.Config `toml:"rotate"`
	Targets []TargetConfig `toml:"target"`
	Fees    FeeConfig      `toml:"fees"`

	PrivateKey string `toml:"-"`
	LogLevel   string `toml:"-"`
}

// LoadConfig reads the TOML file at path, applies defaults and reads the
// signing key from PRIVATE_KEY.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	cfg.PrivateKey = getEnv("PRIVATE_KEY", "")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StepInterval == 0 {
		c.StepInterval = uint64(DefaultStepInterval / time.Second)
	}
	if c.BeaconTimeout == 0 {
		c.BeaconTimeout = uint64(DefaultBeaconTimeout / time.Second)
	}
	if c.DataDir == "" {
		c.DataDir = getEnv("ROOT", ".") + "/data"
	}
	if c.WorkDir == "" {
		c.WorkDir = getEnv("ROOT", ".") + "/work"
	}
	if c.Fees.GasStationURL == "" {
		c.Fees.GasStationURL = DefaultGasStationURL
	}
	if c.Fees.DefaultMaxFeeGwei == 0 {
		c.Fees.DefaultMaxFeeGwei = DefaultFeeGwei
	}
	if c.Fees.DefaultPriorityFeeGwei == 0 {
		c.Fees.DefaultPriorityFeeGwei = DefaultFeeGwei
	}
	if c.Fees.GasLimit == 0 {
		c.Fees.GasLimit = DefaultGasLimit
	}
}

func (c *Config) StepIntervalDuration() time.Duration {
	return time.Duration(c.StepInterval) * time.Second
}

func (c *Config) BeaconTimeoutDuration() time.Duration {
	return time.Duration(c.BeaconTimeout) * time.Second
}

// Validate checks the settings needed to run; the error names the offending key.
func (c *Config) Validate() error {
	if c.ConsensusRPCURL == "" && c.ReplayDir == "" {
		return fmt.Errorf("config: consensusRpcUrl is required")
	}
	if c.GenesisValidatorsRoot != nil {
		if _, err := c.GenesisValidatorsRoot.Root(); err != nil {
			return fmt.Errorf("config: genesisValidatorsRoot: %w", err)
		}
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("config: at least one [[target]] is required")
	}
	seen := make(map[string]bool)
	for i, t := range c.Targets {
		switch {
		case t.Name == "":
			return fmt.Errorf("config: target[%d].name is required", i)
		case seen[t.Name]:
			return fmt.Errorf("config: target[%d].name %q is duplicated", i, t.Name)
		case t.ChainID == 0:
			return fmt.Errorf("config: target[%d].chainId is required", i)
		case !common.IsHexAddress(t.Address):
			return fmt.Errorf("config: target[%d].address %q is not an address", i, t.Address)
		case t.ExecutionRPCURL == "":
			return fmt.Errorf("config: target[%d].executionRpcUrl is required", i)
		}
		seen[t.Name] = true
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("config: PRIVATE_KEY is not set")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
