// Package config provides configuration loading for training runs.
// Settings come from a YAML file with optional environment variable
// overrides, are validated once, and are treated as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Activation function names accepted by Config.Activation.
const (
	ActivationTanh = "tanh"
	ActivationReLU = "relu"
)

// Optimizer names accepted by Config.Optimizer.
const (
	OptimizerAdam = "adam"
	OptimizerSGD  = "sgd"
)

// Config contains all hyperparameters for one training run.
type Config struct {
	// TotalTimesteps is the total number of environment steps to train for,
	// summed over all parallel environments.
	TotalTimesteps int `yaml:"total_timesteps"`

	// NumSteps is the rollout horizon: environment steps collected per
	// parallel environment per update.
	NumSteps int `yaml:"num_steps"`

	// NumEnvs is the number of parallel environment instances.
	NumEnvs int `yaml:"num_envs"`

	// NumMinibatches is the number of minibatches the flattened rollout
	// batch is split into each epoch.
	NumMinibatches int `yaml:"num_minibatches"`

	// UpdateEpochs is the number of passes over the shuffled rollout batch
	// per update.
	UpdateEpochs int `yaml:"update_epochs"`

	// LR is the optimizer learning rate (the initial rate when AnnealLR).
	LR float64 `yaml:"lr"`

	// AnnealLR enables the linear learning-rate decay across updates.
	AnnealLR bool `yaml:"anneal_lr"`

	// Gamma is the reward discount factor.
	Gamma float64 `yaml:"gamma"`

	// GAELambda is the generalized advantage estimation lambda.
	GAELambda float64 `yaml:"gae_lambda"`

	// ClipEps is the PPO surrogate and value clipping epsilon.
	ClipEps float64 `yaml:"clip_eps"`

	// EntCoef scales the entropy bonus.
	EntCoef float64 `yaml:"ent_coef"`

	// VFCoef scales the value loss.
	VFCoef float64 `yaml:"vf_coef"`

	// MaxGradNorm is the global-norm gradient clipping threshold.
	MaxGradNorm float64 `yaml:"max_grad_norm"`

	// Activation selects the hidden activation: "tanh" or "relu".
	Activation string `yaml:"activation"`

	// Optimizer selects the update rule: "adam" or "sgd".
	Optimizer string `yaml:"optimizer"`

	// B1 and B2 are the Adam first/second moment decay rates.
	B1 float64 `yaml:"b1"`
	B2 float64 `yaml:"b2"`

	// Tau is the dormancy diagnostic threshold: a neuron whose mean
	// activation magnitude falls at or below Tau times the layer mean
	// counts as dormant.
	Tau float64 `yaml:"tau"`

	// NormalizeEnv enables running observation and reward normalization.
	NormalizeEnv bool `yaml:"normalize_env"`

	// Seed seeds the run's root random key.
	Seed int64 `yaml:"seed"`

	// LogLevel sets operational log verbosity: "info" or "debug".
	// At "debug", per-update diagnostics are also emitted to the log.
	LogLevel string `yaml:"log_level"`
}

// Default returns the baseline continuous-control configuration.
func Default() Config {
	return Config{
		TotalTimesteps: 500_000,
		NumSteps:       128,
		NumEnvs:        8,
		NumMinibatches: 4,
		UpdateEpochs:   4,
		LR:             3e-4,
		AnnealLR:       true,
		Gamma:          0.99,
		GAELambda:      0.95,
		ClipEps:        0.2,
		EntCoef:        0.0,
		VFCoef:         0.5,
		MaxGradNorm:    0.5,
		Activation:     ActivationTanh,
		Optimizer:      OptimizerAdam,
		B1:             0.9,
		B2:             0.999,
		Tau:            0.025,
		NormalizeEnv:   true,
		Seed:           0,
		LogLevel:       "info",
	}
}

// Load reads a config file, applies environment overrides, and validates.
// An empty path loads defaults (plus environment overrides).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides lets PPO_* variables override scalar fields, so runs can
// be re-seeded or re-scaled without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt("PPO_TOTAL_TIMESTEPS"); ok {
		cfg.TotalTimesteps = v
	}
	if v, ok := envInt("PPO_NUM_STEPS"); ok {
		cfg.NumSteps = v
	}
	if v, ok := envInt("PPO_NUM_ENVS"); ok {
		cfg.NumEnvs = v
	}
	if v, ok := envInt("PPO_SEED"); ok {
		cfg.Seed = int64(v)
	}
	if v := os.Getenv("PPO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func envInt(key string) (int, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// Validate checks the configuration before any training step runs.
func (c Config) Validate() error {
	for _, field := range []struct {
		name  string
		value int
	}{
		{"total_timesteps", c.TotalTimesteps},
		{"num_steps", c.NumSteps},
		{"num_envs", c.NumEnvs},
		{"num_minibatches", c.NumMinibatches},
		{"update_epochs", c.UpdateEpochs},
	} {
		if field.value <= 0 {
			return fmt.Errorf("config: %s must be > 0, got %d", field.name, field.value)
		}
	}

	batch := c.NumEnvs * c.NumSteps
	if batch%c.NumMinibatches != 0 {
		return fmt.Errorf("config: batch size %d (num_envs*num_steps) is not divisible by num_minibatches %d", batch, c.NumMinibatches)
	}
	if c.NumUpdates() <= 0 {
		return fmt.Errorf("config: total_timesteps %d yields zero updates for %d envs x %d steps", c.TotalTimesteps, c.NumEnvs, c.NumSteps)
	}
	if c.LR <= 0 {
		return fmt.Errorf("config: lr must be > 0, got %g", c.LR)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("config: gamma must be in [0, 1], got %g", c.Gamma)
	}
	if c.GAELambda < 0 || c.GAELambda > 1 {
		return fmt.Errorf("config: gae_lambda must be in [0, 1], got %g", c.GAELambda)
	}
	if c.ClipEps <= 0 {
		return fmt.Errorf("config: clip_eps must be > 0, got %g", c.ClipEps)
	}
	switch c.Activation {
	case ActivationTanh, ActivationReLU:
	default:
		return fmt.Errorf("config: unknown activation %q", c.Activation)
	}
	switch c.Optimizer {
	case OptimizerAdam, OptimizerSGD:
	default:
		return fmt.Errorf("config: unknown optimizer %q", c.Optimizer)
	}
	return nil
}

// NumUpdates is the number of update steps derived from the timestep budget.
func (c Config) NumUpdates() int {
	return c.TotalTimesteps / c.NumSteps / c.NumEnvs
}

// MinibatchSize is the number of samples per minibatch.
func (c Config) MinibatchSize() int {
	return c.NumEnvs * c.NumSteps / c.NumMinibatches
}

// BatchSize is the flattened rollout size, NumEnvs * NumSteps.
func (c Config) BatchSize() int {
	return c.NumEnvs * c.NumSteps
}
