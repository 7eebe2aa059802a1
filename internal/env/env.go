// Package env provides the vectorized environment contract for training:
// a batched reset/step interface over a fixed number of parallel instances,
// a pendulum swing-up task, and the wrapper stack (action clipping, episode
// statistics, observation/reward normalization).
package env

import (
	"gonum.org/v1/gonum/mat"

	"vectorized-ppo/internal/prng"
)

// State is the opaque environment state threaded between steps. It is owned
// exclusively by the environment: callers pass back the value they were last
// given and never inspect it.
type State any

// Info carries auxiliary per-step diagnostics, batched over the environment
// axis. It is opaque to the training algorithm and forwarded into metrics.
type Info map[string][]float64

// VecEnv is the batched environment contract. Reset and Step take one key
// per environment instance for the instance's own stochasticity.
type VecEnv interface {
	NumEnvs() int
	ObsDim() int
	ActDim() int

	// Reset starts new episodes in every instance and returns the initial
	// observation batch (NumEnvs × ObsDim) and fresh state.
	Reset(keys []prng.Key) (*mat.Dense, State)

	// Step advances every instance by one transition. Episodes that finish
	// are restarted in place; the returned observation is then the new
	// episode's first observation while reward and done describe the
	// completed transition.
	Step(keys []prng.Key, st State, actions *mat.Dense) (*mat.Dense, State, []float64, []bool, Info, error)
}

// Build assembles the standard training stack around the pendulum task:
// episode statistics, action clipping, and optionally running observation
// and reward normalization.
func Build(numEnvs int, normalize bool, gamma float64) VecEnv {
	var e VecEnv = NewPendulum(numEnvs)
	e = WithEpisodeStats(e)
	e = WithClipAction(e)
	if normalize {
		e = WithNormalizeObs(e)
		e = WithNormalizeReward(e, gamma)
	}
	return e
}
