// Package ppo implements the on-policy training core: synchronized rollout
// collection over parallel environments, generalized advantage estimation,
// the clipped-surrogate update over shuffled minibatches and multiple epochs,
// and the per-update dormancy and gradient-second-moment diagnostics.
package ppo

import (
	"gonum.org/v1/gonum/mat"

	"vectorized-ppo/internal/env"
	"vectorized-ppo/internal/network"
	"vectorized-ppo/internal/optim"
	"vectorized-ppo/internal/prng"
)

// Transition records one environment step for every parallel instance.
// Value, LogProb, and Obs are the pre-step quantities: the estimates the
// policy acted on. Transitions are immutable once recorded.
type Transition struct {
	Done    []bool
	Action  *mat.Dense // NumEnvs × ActDim
	Value   []float64
	Reward  []float64
	LogProb []float64
	Obs     *mat.Dense // NumEnvs × ObsDim
	Info    env.Info
}

// Trajectory is one rollout: NumSteps transitions, time-major.
type Trajectory []Transition

// RunnerState is the state threaded between update steps: model parameters,
// optimizer state, environment state, the last observation batch, and the
// random key remainder.
type RunnerState struct {
	Params   *network.Params
	OptState optim.State
	EnvState env.State
	LastObs  *mat.Dense
	Key      prng.Key
}
