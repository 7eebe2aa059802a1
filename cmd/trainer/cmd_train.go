package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vectorized-ppo/internal/config"
	"vectorized-ppo/internal/env"
	"vectorized-ppo/internal/logging"
	"vectorized-ppo/internal/metrics"
	"vectorized-ppo/internal/network"
	"vectorized-ppo/internal/optim"
	"vectorized-ppo/internal/ppo"
	"vectorized-ppo/internal/prng"
)

// metricsBuffer bounds how many per-update records the dispatcher holds
// before dropping.
const metricsBuffer = 256

func newTrainCmd() *cobra.Command {
	var (
		configPath  string
		seed        int64
		logLevel    string
		metricsFile string
		metricsDB   string
		statsAddr   string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run one PPO training run to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			return runTrain(cfg, metricsFile, metricsDB, statsAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults apply when empty)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override the config seed")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log verbosity: info or debug")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "append per-update metrics to this JSONL file")
	cmd.Flags().StringVar(&metricsDB, "metrics-db", "", "persist per-update metrics to this SQLite database")
	cmd.Flags().StringVar(&statsAddr, "stats-addr", "", "serve run stats over HTTP on this address")
	return cmd
}

func runTrain(cfg config.Config, metricsFile, metricsDB, statsAddr string) error {
	logger := logging.NewLogger(cfg.LogLevel, os.Stderr)
	runID := uuid.NewString()
	logger.Info("starting training run",
		"run_id", runID,
		"updates", cfg.NumUpdates(),
		"envs", cfg.NumEnvs,
		"horizon", cfg.NumSteps,
		"minibatch_size", cfg.MinibatchSize(),
	)

	sink, err := buildSink(runID, metricsFile, metricsDB, statsAddr, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("closing metrics sink", "err", err)
		}
	}()

	e := env.Build(cfg.NumEnvs, cfg.NormalizeEnv, cfg.Gamma)
	net := network.New(e.ObsDim(), e.ActDim(), cfg.Activation)

	schedule := optim.Constant(cfg.LR)
	if cfg.AnnealLR {
		schedule = optim.Linear(cfg.LR, cfg.NumMinibatches*cfg.UpdateEpochs, cfg.NumUpdates())
	}
	var opt *optim.Optimizer
	if cfg.Optimizer == config.OptimizerAdam {
		opt = optim.NewAdam(cfg.B1, cfg.B2, cfg.MaxGradNorm, schedule)
	} else {
		opt = optim.NewSGD(cfg.MaxGradNorm, schedule)
	}

	trainer := &ppo.Trainer{
		Cfg:  cfg,
		Env:  e,
		Net:  net,
		Opt:  opt,
		Sink: sink,
		Log:  logger,
	}

	result, err := trainer.Run(trainer.Init(prng.NewKey(cfg.Seed)))
	if err != nil {
		return fmt.Errorf("training run %s: %w", runID, err)
	}

	emitFinalReturns(sink, cfg, result)
	logger.Info("training run complete",
		"run_id", runID,
		"updates", len(result.Updates),
		"final_loss", result.Updates[len(result.Updates)-1]["total_loss"],
	)
	return nil
}

func buildSink(runID, metricsFile, metricsDB, statsAddr string, logger *slog.Logger) (metrics.Sink, error) {
	var sinks metrics.Multi
	if metricsFile != "" {
		s, err := metrics.NewJSONLSink(metricsFile, runID)
		if err != nil {
			return nil, fmt.Errorf("opening metrics file: %w", err)
		}
		sinks = append(sinks, s)
	}
	if metricsDB != "" {
		s, err := metrics.NewSQLiteSink(metricsDB, runID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if statsAddr != "" {
		server := metrics.NewServer(runID)
		server.Serve(statsAddr, func(err error) {
			logger.Warn("stats server stopped", "err", err)
		})
		sinks = append(sinks, server)
	}
	if len(sinks) == 0 {
		return noopSink{}, nil
	}
	return metrics.NewDispatcher(sinks, metricsBuffer), nil
}

// emitFinalReturns replays the per-update episodic returns to the sink once
// training finishes, as a compact end-of-training summary series.
func emitFinalReturns(sink metrics.Sink, cfg config.Config, result ppo.Result) {
	for u, values := range result.Updates {
		ret, ok := values["episode_return_mean"]
		if !ok {
			continue
		}
		sink.Emit(u, metrics.Values{
			"eot_return":   ret,
			"eot_timestep": float64(u * cfg.NumSteps * cfg.NumEnvs),
		})
	}
}

type noopSink struct{}

func (noopSink) Emit(int, metrics.Values) {}
func (noopSink) Close() error             { return nil }
