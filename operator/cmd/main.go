package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	circuit "github.com/kysee/zk-lightclient/circuits"
	"github.com/kysee/zk-lightclient/consensus"
	"github.com/kysee/zk-lightclient/destination"
	"github.com/kysee/zk-lightclient/operator"
	optypes "github.com/kysee/zk-lightclient/operator/types"
	"github.com/kysee/zk-lightclient/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to the operator TOML config",
	Value:   "operator.toml",
	EnvVars: []string{"OPERATOR_CONFIG"},
}

var logLevelFlag = &cli.StringFlag{
	Name:  "log-level",
	Usage: "zerolog level, overrides LOG_LEVEL",
}

func main() {
	app := &cli.App{
		Name:   "operator",
		Usage:  "proves beacon chain updates and submits them to light client contracts",
		Flags:  []cli.Flag{configFlag, logLevelFlag},
		Action: runOperator,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "sync every light client, then step on a fixed interval",
				Action: runOperator,
			},
			{
				Name:   "sync",
				Usage:  "rotate every light client to the current sync committee and exit",
				Action: syncOperator,
			},
			{
				Name:   "input",
				Usage:  "write the circuit inputs for the latest finalized update and record it for replay",
				Action: writeInputs,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "operator: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func signalContext(parent context.Context, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx, cancel
}

func loadConfig(c *cli.Context) (*optypes.Config, zerolog.Logger, error) {
	cfg, err := optypes.LoadConfig(c.String(configFlag.Name))
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = c.String(logLevelFlag.Name)
	}
	return cfg, newLogger(cfg.LogLevel), nil
}

func newSource(cfg *optypes.Config, log zerolog.Logger) optypes.ConsensusSource {
	if cfg.ReplayDir != "" {
		log.Info().Str("dir", cfg.ReplayDir).Msg("replaying recorded snapshots")
		return consensus.NewFileSource(cfg.ReplayDir)
	}
	return consensus.NewClient(cfg.ConsensusRPCURL, cfg.BeaconTimeoutDuration(), log)
}

func newCircuits(cfg *optypes.Config, log zerolog.Logger) (*circuit.StepCircuit, *circuit.RotateCircuit, error) {
	stepDriver, err := circuit.NewDriver("step", cfg.Step, cfg.WorkDir, log)
	if err != nil {
		return nil, nil, err
	}
	rotateDriver, err := circuit.NewDriver("rotate", cfg.Rotate, cfg.WorkDir, log)
	if err != nil {
		return nil, nil, err
	}
	step := circuit.NewStepCircuit(stepDriver)
	return step, circuit.NewRotateCircuit(rotateDriver, step), nil
}

func healthCheck(cfg *optypes.Config, log zerolog.Logger) func(context.Context) error {
	if cfg.ReplayDir != "" {
		return nil
	}
	health := consensus.NewHealth(cfg.ConsensusRPCURL, cfg.BeaconTimeoutDuration(), log)
	client := consensus.NewClient(cfg.ConsensusRPCURL, cfg.BeaconTimeoutDuration(), log)
	return func(ctx context.Context) error {
		var expected types.Genesis
		if cfg.GenesisValidatorsRoot != nil {
			root, err := cfg.GenesisValidatorsRoot.Root()
			if err != nil {
				return fmt.Errorf("config: genesisValidatorsRoot: %w", err)
			}
			expected.GenesisValidatorsRoot = root
		} else {
			genesis, err := client.GetGenesis(ctx)
			if err != nil {
				return err
			}
			expected = genesis
		}
		return health.Check(ctx, expected)
	}
}

func newOperator(ctx context.Context, cfg *optypes.Config, log zerolog.Logger) (*operator.Operator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("PRIVATE_KEY: %w", err)
	}
	step, rotate, err := newCircuits(cfg, log)
	if err != nil {
		return nil, err
	}

	fees := destination.NewFeeEstimator(cfg.Fees, log)
	targets := make([]optypes.Destination, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		lc, err := destination.Dial(ctx, t, key, fees, log)
		if err != nil {
			return nil, err
		}
		log.Info().Str("target", t.Name).Uint64("chainId", t.ChainID).Str("address", t.Address).Msg("light client connected")
		targets = append(targets, lc)
	}

	return operator.New(newSource(cfg, log), step, rotate, targets, operator.Options{
		DataDir:          cfg.DataDir,
		StepInterval:     cfg.StepIntervalDuration(),
		VerifySignatures: cfg.VerifySignatures,
		HealthCheck:      healthCheck(cfg, log),
	}, log), nil
}

func runOperator(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c.Context, log)
	defer cancel()

	op, err := newOperator(ctx, cfg, log)
	if err != nil {
		return err
	}
	return op.Run(ctx)
}

func syncOperator(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c.Context, log)
	defer cancel()

	op, err := newOperator(ctx, cfg, log)
	if err != nil {
		return err
	}
	go op.WatchReceipts(ctx)
	return op.Sync(ctx)
}

func writeInputs(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c.Context, log)
	defer cancel()

	update, err := newSource(cfg, log).GetTelepathyUpdate(ctx, consensus.Finalized)
	if err != nil {
		return err
	}
	step, rotate, err := newCircuits(cfg, log)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return err
	}
	for name, calc := range map[string]func(*types.TelepathyUpdate) (*circuit.Input, error){
		"step":   step.CalculateInputs,
		"rotate": rotate.CalculateInputs,
	} {
		input, err := calc(update)
		if err != nil {
			return fmt.Errorf("%s inputs: %w", name, err)
		}
		data, err := json.Marshal(input)
		if err != nil {
			return err
		}
		path := filepath.Join(cfg.WorkDir, fmt.Sprintf("%s_input_%d.json", name, update.FinalizedHeader.Slot))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		log.Info().Str("path", path).Int("signals", input.Len()).Msg("circuit input written")
	}

	if cfg.ReplayDir == "" {
		path, err := consensus.NewFileSource(filepath.Join(cfg.DataDir, "snapshots")).Record(update)
		if err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("snapshot recorded")
	}
	return nil
}
