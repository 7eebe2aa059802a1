package env

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"vectorized-ppo/internal/prng"
)

const (
	gravity    = 10.0
	massPole   = 1.0
	lengthPole = 1.0
	dt         = 0.05

	maxSpeed        = 8.0
	maxTorque       = 2.0
	maxEpisodeSteps = 200
)

// Pendulum is a vectorized pendulum swing-up task. Observations are
// [cos θ, sin θ, θ̇]; the single continuous action is a torque in
// [-maxTorque, maxTorque]. Reward penalizes angle from upright, angular
// velocity, and control effort. Episodes run a fixed number of steps and
// restart automatically.
type Pendulum struct {
	numEnvs int
}

type pendulumState struct {
	theta    []float64
	thetaDot []float64
	steps    []int
}

// NewPendulum creates a pendulum environment with n parallel instances.
func NewPendulum(n int) *Pendulum {
	return &Pendulum{numEnvs: n}
}

func (e *Pendulum) NumEnvs() int { return e.numEnvs }
func (e *Pendulum) ObsDim() int  { return 3 }
func (e *Pendulum) ActDim() int  { return 1 }

func (e *Pendulum) Reset(keys []prng.Key) (*mat.Dense, State) {
	st := &pendulumState{
		theta:    make([]float64, e.numEnvs),
		thetaDot: make([]float64, e.numEnvs),
		steps:    make([]int, e.numEnvs),
	}
	for i := 0; i < e.numEnvs; i++ {
		e.resetInstance(st, i, keys[i])
	}
	return e.observe(st), st
}

func (e *Pendulum) Step(keys []prng.Key, state State, actions *mat.Dense) (*mat.Dense, State, []float64, []bool, Info, error) {
	st, ok := state.(*pendulumState)
	if !ok {
		return nil, nil, nil, nil, nil, fmt.Errorf("pendulum: foreign state %T", state)
	}
	if rows, cols := actions.Dims(); rows != e.numEnvs || cols != 1 {
		return nil, nil, nil, nil, nil, fmt.Errorf("pendulum: action batch %dx%d, want %dx1", rows, cols, e.numEnvs)
	}

	next := &pendulumState{
		theta:    append([]float64(nil), st.theta...),
		thetaDot: append([]float64(nil), st.thetaDot...),
		steps:    append([]int(nil), st.steps...),
	}
	rewards := make([]float64, e.numEnvs)
	dones := make([]bool, e.numEnvs)

	for i := 0; i < e.numEnvs; i++ {
		torque := clamp(actions.At(i, 0), -maxTorque, maxTorque)
		theta := next.theta[i]
		thetaDot := next.thetaDot[i]

		angle := angleNormalize(theta)
		rewards[i] = -(angle*angle + 0.1*thetaDot*thetaDot + 0.001*torque*torque)

		thetaDot += (3*gravity/(2*lengthPole)*math.Sin(theta) +
			3/(massPole*lengthPole*lengthPole)*torque) * dt
		thetaDot = clamp(thetaDot, -maxSpeed, maxSpeed)
		theta += thetaDot * dt

		if math.IsNaN(theta) || math.IsInf(theta, 0) {
			return nil, nil, nil, nil, nil, fmt.Errorf("pendulum: instance %d diverged", i)
		}

		next.theta[i] = theta
		next.thetaDot[i] = thetaDot
		next.steps[i]++

		if next.steps[i] >= maxEpisodeSteps {
			dones[i] = true
			e.resetInstance(next, i, keys[i])
		}
	}
	return e.observe(next), next, rewards, dones, Info{}, nil
}

func (e *Pendulum) resetInstance(st *pendulumState, i int, key prng.Key) {
	rng := key.Rand()
	st.theta[i] = rng.Float64()*2*math.Pi - math.Pi
	st.thetaDot[i] = rng.Float64()*2 - 1
	st.steps[i] = 0
}

func (e *Pendulum) observe(st *pendulumState) *mat.Dense {
	obs := mat.NewDense(e.numEnvs, 3, nil)
	for i := 0; i < e.numEnvs; i++ {
		obs.Set(i, 0, math.Cos(st.theta[i]))
		obs.Set(i, 1, math.Sin(st.theta[i]))
		obs.Set(i, 2, st.thetaDot[i])
	}
	return obs
}

func angleNormalize(theta float64) float64 {
	m := math.Mod(theta+math.Pi, 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}
	return m - math.Pi
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
