package ppo

import (
	"fmt"
	"log/slog"

	"vectorized-ppo/internal/config"
	"vectorized-ppo/internal/env"
	"vectorized-ppo/internal/metrics"
	"vectorized-ppo/internal/network"
	"vectorized-ppo/internal/optim"
	"vectorized-ppo/internal/prng"
)

// Trainer is the outer training loop: it runs exactly NumUpdates update
// steps, each one rollout → advantage estimation → multi-epoch minibatch
// updates → diagnostic aggregation, threading the runner state through.
type Trainer struct {
	Cfg  config.Config
	Env  env.VecEnv
	Net  *network.Network
	Opt  *optim.Optimizer
	Sink metrics.Sink // may be nil
	Log  *slog.Logger // may be nil
}

// Result is the terminal state of a run plus the per-update metrics.
type Result struct {
	Runner  RunnerState
	Updates []metrics.Values
}

// Init builds the initial runner state: freshly initialized parameters and
// optimizer state, a freshly reset environment, and the key remainder.
func (t *Trainer) Init(key prng.Key) RunnerState {
	var initKey, resetKey prng.Key
	key, initKey = key.Split()
	params := t.Net.Init(initKey)

	key, resetKey = key.Split()
	obs, envState := t.Env.Reset(resetKey.SplitN(t.Env.NumEnvs()))

	return RunnerState{
		Params:   params,
		OptState: t.Opt.Init(params),
		EnvState: envState,
		LastObs:  obs,
		Key:      key,
	}
}

// Run executes the configured number of update steps. There is no early
// termination: any error aborts the run without a usable final state.
func (t *Trainer) Run(rs RunnerState) (Result, error) {
	if err := t.Cfg.Validate(); err != nil {
		return Result{}, err
	}

	collector := &Collector{Env: t.Env, Net: t.Net}
	engine := &Engine{
		Net:     t.Net,
		Opt:     t.Opt,
		ClipEps: t.Cfg.ClipEps,
		VFCoef:  t.Cfg.VFCoef,
		EntCoef: t.Cfg.EntCoef,
		Tau:     t.Cfg.Tau,
	}

	numUpdates := t.Cfg.NumUpdates()
	perUpdate := make([]metrics.Values, 0, numUpdates)
	for update := 0; update < numUpdates; update++ {
		values, next, err := t.updateStep(collector, engine, rs)
		if err != nil {
			return Result{}, fmt.Errorf("update %d: %w", update, err)
		}
		rs = next

		perUpdate = append(perUpdate, values)
		if t.Sink != nil {
			t.Sink.Emit(update, values)
		}
		if t.Log != nil {
			t.Log.Debug("update complete",
				"update", update,
				"total_loss", values["total_loss"],
				"episode_return", values["episode_return_mean"],
			)
		}
	}
	return Result{Runner: rs, Updates: perUpdate}, nil
}

// updateStep runs one full update: collect a rollout, estimate advantages
// against the bootstrap value, and run UpdateEpochs shuffled minibatch
// passes over the fixed advantage/target arrays.
func (t *Trainer) updateStep(collector *Collector, engine *Engine, rs RunnerState) (metrics.Values, RunnerState, error) {
	traj, rs, err := collector.Collect(rs, t.Cfg.NumSteps)
	if err != nil {
		return nil, rs, err
	}

	_, lastValues, _ := t.Net.Apply(rs.Params, rs.LastObs)
	advantages, targets := ComputeGAE(traj, lastValues, t.Cfg.Gamma, t.Cfg.GAELambda)
	batch := Flatten(traj, advantages, targets)

	params := rs.Params
	optState := rs.OptState
	key := rs.Key

	agg := newAggregator()
	for epoch := 0; epoch < t.Cfg.UpdateEpochs; epoch++ {
		var permKey prng.Key
		key, permKey = key.Split()
		shuffled := batch.Reorder(permKey.Perm(batch.Size()))

		var last Stats
		for _, mb := range shuffled.Minibatches(t.Cfg.NumMinibatches) {
			var stats Stats
			params, optState, stats = engine.Update(params, optState, mb)
			agg.addLosses(stats)
			last = stats
		}
		// Diagnostics come from the last minibatch pass of each epoch.
		agg.addDiagnostics(last)
	}

	rs.Params = params
	rs.OptState = optState
	rs.Key = key

	values := agg.values()
	addEpisodeStats(values, traj)
	return values, rs, nil
}

// aggregator averages minibatch losses and per-epoch diagnostics into one
// per-update metric mapping.
type aggregator struct {
	lossSums   metrics.Values
	lossCount  int
	diagSums   metrics.Values
	diagCounts int
}

func newAggregator() *aggregator {
	return &aggregator{lossSums: metrics.Values{}, diagSums: metrics.Values{}}
}

func (a *aggregator) addLosses(s Stats) {
	a.lossSums["total_loss"] += s.TotalLoss
	a.lossSums["value_loss"] += s.ValueLoss
	a.lossSums["policy_loss"] += s.PolicyLoss
	a.lossSums["entropy"] += s.Entropy
	a.lossCount++
}

func (a *aggregator) addDiagnostics(s Stats) {
	for layer, rate := range s.Dormancy {
		a.diagSums["dormancy/"+layer] += rate
	}
	for tensor, rate := range s.GradSecondMoment {
		a.diagSums["grad_second_moment/"+tensor] += rate
	}
	a.diagCounts++
}

func (a *aggregator) values() metrics.Values {
	out := metrics.Values{}
	for k, v := range a.lossSums {
		out[k] = v / float64(a.lossCount)
	}
	for k, v := range a.diagSums {
		out[k] = v / float64(a.diagCounts)
	}
	return out
}

// addEpisodeStats folds the trajectory's info side channel into the metric
// mapping: the mean return/length over episodes completed during this
// rollout and the environment timestep counter.
func addEpisodeStats(values metrics.Values, traj Trajectory) {
	episodes := 0
	returnSum := 0.0
	lengthSum := 0.0
	lastTimestep := 0.0
	for _, tr := range traj {
		flags, ok := tr.Info["returned_episode"]
		if !ok {
			continue
		}
		rets := tr.Info["returned_episode_returns"]
		lens := tr.Info["returned_episode_lengths"]
		for i, f := range flags {
			if f != 0 {
				episodes++
				returnSum += rets[i]
				lengthSum += lens[i]
			}
		}
		if ts, ok := tr.Info["timestep"]; ok && len(ts) > 0 {
			lastTimestep = ts[0]
		}
	}
	values["episodes_completed"] = float64(episodes)
	values["timestep"] = lastTimestep
	if episodes > 0 {
		values["episode_return_mean"] = returnSum / float64(episodes)
		values["episode_length_mean"] = lengthSum / float64(episodes)
	}
}
