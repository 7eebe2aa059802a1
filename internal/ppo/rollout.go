package ppo

import (
	"fmt"

	"vectorized-ppo/internal/env"
	"vectorized-ppo/internal/network"
	"vectorized-ppo/internal/prng"
)

// Collector drives the environment under the current policy for a fixed
// horizon.
type Collector struct {
	Env env.VecEnv
	Net *network.Network
}

// Collect runs numSteps synchronized environment steps and records the
// trajectory. Each step consumes two fresh key substreams: one for action
// sampling and one for the environment's own stochasticity. The pre-step
// observation and value estimate are recorded with each transition.
func (c *Collector) Collect(rs RunnerState, numSteps int) (Trajectory, RunnerState, error) {
	traj := make(Trajectory, 0, numSteps)
	envState := rs.EnvState
	obs := rs.LastObs
	key := rs.Key

	for t := 0; t < numSteps; t++ {
		var sampleKey, stepKey prng.Key
		key, sampleKey = key.Split()
		dist, values, _ := c.Net.Apply(rs.Params, obs)
		actions := dist.Sample(sampleKey.Rand())
		logProbs := dist.LogProb(actions)

		key, stepKey = key.Split()
		nextObs, nextState, rewards, dones, info, err := c.Env.Step(
			stepKey.SplitN(c.Env.NumEnvs()), envState, actions)
		if err != nil {
			return nil, rs, fmt.Errorf("rollout step %d: %w", t, err)
		}

		traj = append(traj, Transition{
			Done:    dones,
			Action:  actions,
			Value:   values,
			Reward:  rewards,
			LogProb: logProbs,
			Obs:     obs,
			Info:    info,
		})
		obs = nextObs
		envState = nextState
	}

	next := rs
	next.EnvState = envState
	next.LastObs = obs
	next.Key = key
	return traj, next, nil
}
