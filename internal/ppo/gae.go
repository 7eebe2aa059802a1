package ppo

// ComputeGAE estimates per-step advantages and value targets from a
// trajectory by the backward recursion
//
//	delta_t = reward_t + gamma*V_{t+1}*(1-done_t) - value_t
//	gae_t   = delta_t + gamma*lambda*(1-done_t)*gae_{t+1}
//
// with gae after the horizon zero and lastValues supplying the bootstrap
// V_{T+1}. A done step zeroes both bootstrap terms, so no signal leaks
// across an episode reset. Targets are gae_t + value_t.
//
// Pure function of its inputs; the trajectory is not modified. Both outputs
// are shaped [NumSteps][NumEnvs].
func ComputeGAE(traj Trajectory, lastValues []float64, gamma, lambda float64) (advantages, targets [][]float64) {
	steps := len(traj)
	if steps == 0 {
		return nil, nil
	}
	numEnvs := len(lastValues)

	advantages = make([][]float64, steps)
	targets = make([][]float64, steps)
	for t := range advantages {
		advantages[t] = make([]float64, numEnvs)
		targets[t] = make([]float64, numEnvs)
	}

	gae := make([]float64, numEnvs)
	nextValue := lastValues
	for t := steps - 1; t >= 0; t-- {
		tr := traj[t]
		for i := 0; i < numEnvs; i++ {
			notDone := 1.0
			if tr.Done[i] {
				notDone = 0
			}
			delta := tr.Reward[i] + gamma*nextValue[i]*notDone - tr.Value[i]
			gae[i] = delta + gamma*lambda*notDone*gae[i]
			advantages[t][i] = gae[i]
			targets[t][i] = gae[i] + tr.Value[i]
		}
		nextValue = tr.Value
	}
	return advantages, targets
}
