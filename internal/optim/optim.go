// Package optim implements the gradient-based parameter update: Adam or SGD
// behind one contract, with global-norm gradient clipping composed in front
// and a pluggable learning-rate schedule.
//
// The contract is functional: Init(params) produces a State, and
// ApplyGradients(state, params, grads) returns a new State and new Params
// without mutating its inputs.
package optim

import (
	"math"

	"vectorized-ppo/internal/network"
)

// adamEps matches the configured Adam epsilon of the training setup.
const adamEps = 1e-5

// Schedule maps an optimizer step count to a learning rate.
type Schedule func(step int) float64

// Constant returns a schedule fixed at lr.
func Constant(lr float64) Schedule {
	return func(int) float64 { return lr }
}

// Linear anneals lr to zero across updates: the rate is constant within one
// update step (stepsPerUpdate = NUM_MINIBATCHES * UPDATE_EPOCHS optimizer
// steps) and decreases linearly across the numUpdates update steps.
func Linear(lr float64, stepsPerUpdate, numUpdates int) Schedule {
	return func(step int) float64 {
		frac := 1.0 - float64(step/stepsPerUpdate)/float64(numUpdates)
		return lr * frac
	}
}

// Optimizer applies gradients under one of the supported update rules.
type Optimizer struct {
	UseAdam     bool
	B1, B2      float64
	MaxGradNorm float64
	Schedule    Schedule
}

// NewAdam returns an Adam optimizer with global-norm clipping.
func NewAdam(b1, b2, maxGradNorm float64, schedule Schedule) *Optimizer {
	return &Optimizer{UseAdam: true, B1: b1, B2: b2, MaxGradNorm: maxGradNorm, Schedule: schedule}
}

// NewSGD returns a plain SGD optimizer with global-norm clipping.
func NewSGD(maxGradNorm float64, schedule Schedule) *Optimizer {
	return &Optimizer{MaxGradNorm: maxGradNorm, Schedule: schedule}
}

// State is the optimizer's internal state. For Adam, M and V hold the
// first/second moment estimates; SGD keeps only the step counter.
type State struct {
	Step int
	M    *network.Params
	V    *network.Params
}

// Init creates the initial optimizer state for params.
func (o *Optimizer) Init(params *network.Params) State {
	s := State{}
	if o.UseAdam {
		s.M = network.ZerosLike(params)
		s.V = network.ZerosLike(params)
	}
	return s
}

// ApplyGradients clips grads by global norm, applies one optimizer step at
// the scheduled learning rate, and returns the new state and new parameters.
// Neither params nor grads is mutated.
func (o *Optimizer) ApplyGradients(s State, params, grads *network.Params) (State, *network.Params) {
	grads = clipByGlobalNorm(grads, o.MaxGradNorm)
	lr := o.Schedule(s.Step)

	next := params.Clone()
	if !o.UseAdam {
		next.AddScaled(grads, -lr)
		return State{Step: s.Step + 1}, next
	}

	m := s.M.Clone()
	v := s.V.Clone()
	mt := m.Tensors()
	vt := v.Tensors()
	gt := grads.Tensors()
	pt := next.Tensors()

	step := s.Step + 1
	bc1 := 1 - math.Pow(o.B1, float64(step))
	bc2 := 1 - math.Pow(o.B2, float64(step))
	for i := range gt {
		for j, g := range gt[i].Data {
			mt[i].Data[j] = o.B1*mt[i].Data[j] + (1-o.B1)*g
			vt[i].Data[j] = o.B2*vt[i].Data[j] + (1-o.B2)*g*g
			mHat := mt[i].Data[j] / bc1
			vHat := vt[i].Data[j] / bc2
			pt[i].Data[j] -= lr * mHat / (math.Sqrt(vHat) + adamEps)
		}
	}
	return State{Step: step, M: m, V: v}, next
}

// clipByGlobalNorm scales grads so their global L2 norm does not exceed max.
// Returns a new Params when scaling is needed, otherwise grads unchanged.
func clipByGlobalNorm(grads *network.Params, max float64) *network.Params {
	if max <= 0 {
		return grads
	}
	norm := GlobalNorm(grads)
	if norm <= max {
		return grads
	}
	clipped := grads.Clone()
	clipped.Scale(max / norm)
	return clipped
}

// GlobalNorm is the L2 norm over every entry of every tensor in p.
func GlobalNorm(p *network.Params) float64 {
	sum := 0.0
	for _, t := range p.Tensors() {
		for _, v := range t.Data {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}
