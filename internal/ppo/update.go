package ppo

import (
	"math"

	"vectorized-ppo/internal/network"
	"vectorized-ppo/internal/optim"
)

// advEps guards advantage normalization against zero-variance minibatches.
const advEps = 1e-8

// Engine performs one clipped-surrogate PPO update per minibatch.
type Engine struct {
	Net     *network.Network
	Opt     *optim.Optimizer
	ClipEps float64
	VFCoef  float64
	EntCoef float64
	Tau     float64
}

// Stats carries the losses and diagnostics of one minibatch update. Loss
// terms are minibatch means; ValueLoss and Entropy are reported unscaled.
type Stats struct {
	TotalLoss  float64
	ValueLoss  float64
	PolicyLoss float64
	Entropy    float64

	// Dormancy is the per-layer dormant-neuron rate.
	Dormancy map[string]float64
	// GradSecondMoment is the per-tensor thresholded-slot rate of the
	// per-sample squared gradients.
	GradSecondMoment map[string]float64
}

// Update runs one minibatch through the clipped PPO objective: it normalizes
// advantages within the minibatch, re-evaluates the model, computes
// per-sample gradients of the total loss, captures the gradient
// second-moment diagnostic before averaging, and applies the averaged,
// norm-clipped gradient through the optimizer.
//
// The minibatch is read-only; new parameter and optimizer states are
// returned.
func (e *Engine) Update(params *network.Params, optState optim.State, mb Batch) (*network.Params, optim.State, Stats) {
	size := mb.Size()
	adv := normalizeAdvantages(mb.Advantages)

	dist, values, cache := e.Net.Apply(params, mb.Obs)
	logProbs := dist.LogProb(mb.Actions)
	entropies := dist.Entropy()

	actDim := e.Net.ActDim
	sampleGrad := network.ZerosLike(params)
	gradSum := network.ZerosLike(params)
	gradSqSum := network.ZerosLike(params)
	dMean := make([]float64, actDim)
	dLogStd := make([]float64, actDim)

	stats := Stats{}
	for i := 0; i < size; i++ {
		// Policy term: loss = -min(ratio*A, clip(ratio)*A).
		ratio := math.Exp(logProbs[i] - mb.LogProbs[i])
		surr := ratio * adv[i]
		clippedSurr := clamp(ratio, 1-e.ClipEps, 1+e.ClipEps) * adv[i]
		policyLoss := -math.Min(surr, clippedSurr)

		// Gradient w.r.t. the new log-prob: active only on the unclipped
		// branch (the clipped branch is flat in the parameters there).
		dLogProb := 0.0
		if surr <= clippedSurr {
			dLogProb = -surr
		}

		// Value term: clipped squared error against the target.
		vDelta := clamp(values[i]-mb.Values[i], -e.ClipEps, e.ClipEps)
		vClipped := mb.Values[i] + vDelta
		lossUnclipped := sq(values[i] - mb.Targets[i])
		lossClipped := sq(vClipped - mb.Targets[i])
		valueLoss := 0.5 * math.Max(lossUnclipped, lossClipped)

		dValue := 0.0
		if lossUnclipped >= lossClipped {
			dValue = values[i] - mb.Targets[i]
		} else if math.Abs(values[i]-mb.Values[i]) < e.ClipEps {
			dValue = vClipped - mb.Targets[i]
		}
		dValue *= e.VFCoef

		// Distribution parameter gradients. The entropy bonus depends only
		// on log_std (state-independent standard deviation).
		for j := 0; j < actDim; j++ {
			z := (mb.Actions.At(i, j) - dist.Mean.At(i, j)) / dist.Std[j]
			dMean[j] = dLogProb * z / dist.Std[j]
			dLogStd[j] = dLogProb*(z*z-1) - e.EntCoef
		}

		e.Net.BackwardSample(params, cache, i, dMean, dLogStd, dValue, sampleGrad)
		gradSum.AddScaled(sampleGrad, 1)
		gradSqSum.AddSquared(sampleGrad)

		stats.PolicyLoss += policyLoss
		stats.ValueLoss += valueLoss
		stats.Entropy += entropies[i]
	}

	stats.PolicyLoss /= float64(size)
	stats.ValueLoss /= float64(size)
	stats.Entropy /= float64(size)
	stats.TotalLoss = stats.PolicyLoss + e.VFCoef*stats.ValueLoss - e.EntCoef*stats.Entropy
	stats.Dormancy = DormancyRate(cache.Activations(), e.Tau)
	stats.GradSecondMoment = GradSecondMomentRate(gradSqSum, defaultZeta)

	// Average the per-sample gradients only after the second-moment
	// diagnostic has been captured.
	gradSum.Scale(1 / float64(size))
	newState, newParams := e.Opt.ApplyGradients(optState, params, gradSum)
	return newParams, newState, stats
}

// normalizeAdvantages standardizes the advantages within the minibatch,
// returning a fresh slice.
func normalizeAdvantages(adv []float64) []float64 {
	mean := 0.0
	for _, a := range adv {
		mean += a
	}
	mean /= float64(len(adv))

	variance := 0.0
	for _, a := range adv {
		d := a - mean
		variance += d * d
	}
	variance /= float64(len(adv))
	std := math.Sqrt(variance)

	out := make([]float64, len(adv))
	for i, a := range adv {
		out[i] = (a - mean) / (std + advEps)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sq(v float64) float64 { return v * v }
