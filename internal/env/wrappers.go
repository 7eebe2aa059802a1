package env

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"vectorized-ppo/internal/prng"
)

const normEps = 1e-8

// initialStatCount primes the running statistics so the first batch does not
// divide by zero.
const initialStatCount = 1e-4

// clipAction clamps actions to the pendulum torque bounds before delegating.
type clipAction struct {
	VecEnv
}

// WithClipAction clips every action to [-maxTorque, maxTorque].
func WithClipAction(inner VecEnv) VecEnv {
	return &clipAction{VecEnv: inner}
}

func (w *clipAction) Step(keys []prng.Key, st State, actions *mat.Dense) (*mat.Dense, State, []float64, []bool, Info, error) {
	rows, cols := actions.Dims()
	clipped := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			clipped.Set(i, j, clamp(actions.At(i, j), -maxTorque, maxTorque))
		}
	}
	return w.VecEnv.Step(keys, st, clipped)
}

// episodeStats tracks per-instance episode returns and lengths and exposes
// them through info, mirroring the conventional log-wrapper fields.
type episodeStats struct {
	VecEnv
}

type episodeStatsState struct {
	inner           State
	returns         []float64
	lengths         []float64
	returnedReturns []float64
	returnedLengths []float64
	timestep        int
}

// WithEpisodeStats records completed-episode returns/lengths in info under
// the keys returned_episode_returns, returned_episode_lengths,
// returned_episode (0/1 flags), and timestep.
func WithEpisodeStats(inner VecEnv) VecEnv {
	return &episodeStats{VecEnv: inner}
}

func (w *episodeStats) Reset(keys []prng.Key) (*mat.Dense, State) {
	obs, inner := w.VecEnv.Reset(keys)
	n := w.NumEnvs()
	return obs, &episodeStatsState{
		inner:           inner,
		returns:         make([]float64, n),
		lengths:         make([]float64, n),
		returnedReturns: make([]float64, n),
		returnedLengths: make([]float64, n),
	}
}

func (w *episodeStats) Step(keys []prng.Key, state State, actions *mat.Dense) (*mat.Dense, State, []float64, []bool, Info, error) {
	st := state.(*episodeStatsState)
	obs, inner, rewards, dones, info, err := w.VecEnv.Step(keys, st.inner, actions)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	n := w.NumEnvs()
	next := &episodeStatsState{
		inner:           inner,
		returns:         append([]float64(nil), st.returns...),
		lengths:         append([]float64(nil), st.lengths...),
		returnedReturns: append([]float64(nil), st.returnedReturns...),
		returnedLengths: append([]float64(nil), st.returnedLengths...),
		timestep:        st.timestep + 1,
	}

	returnedFlags := make([]float64, n)
	timesteps := make([]float64, n)
	for i := 0; i < n; i++ {
		next.returns[i] += rewards[i]
		next.lengths[i]++
		if dones[i] {
			next.returnedReturns[i] = next.returns[i]
			next.returnedLengths[i] = next.lengths[i]
			next.returns[i] = 0
			next.lengths[i] = 0
			returnedFlags[i] = 1
		}
		timesteps[i] = float64(next.timestep)
	}

	info["returned_episode_returns"] = append([]float64(nil), next.returnedReturns...)
	info["returned_episode_lengths"] = append([]float64(nil), next.returnedLengths...)
	info["returned_episode"] = returnedFlags
	info["timestep"] = timesteps
	return obs, next, rewards, dones, info, nil
}

// normalizeObs keeps running per-dimension observation statistics and emits
// standardized observations.
type normalizeObs struct {
	VecEnv
}

type normalizeObsState struct {
	inner State
	mean  []float64
	vari  []float64
	count float64
}

// WithNormalizeObs standardizes observations by running mean and variance.
func WithNormalizeObs(inner VecEnv) VecEnv {
	return &normalizeObs{VecEnv: inner}
}

func (w *normalizeObs) Reset(keys []prng.Key) (*mat.Dense, State) {
	obs, inner := w.VecEnv.Reset(keys)
	st := &normalizeObsState{
		inner: inner,
		mean:  make([]float64, w.ObsDim()),
		vari:  ones(w.ObsDim()),
		count: initialStatCount,
	}
	st.mean, st.vari, st.count = updateColumnStats(st.mean, st.vari, st.count, obs)
	return standardize(obs, st.mean, st.vari), st
}

func (w *normalizeObs) Step(keys []prng.Key, state State, actions *mat.Dense) (*mat.Dense, State, []float64, []bool, Info, error) {
	st := state.(*normalizeObsState)
	obs, inner, rewards, dones, info, err := w.VecEnv.Step(keys, st.inner, actions)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	next := &normalizeObsState{inner: inner}
	next.mean, next.vari, next.count = updateColumnStats(st.mean, st.vari, st.count, obs)
	return standardize(obs, next.mean, next.vari), next, rewards, dones, info, nil
}

// normalizeReward scales rewards by the standard deviation of a discounted
// return accumulator.
type normalizeReward struct {
	VecEnv
	gamma float64
}

type normalizeRewardState struct {
	inner   State
	returns []float64
	mean    []float64
	vari    []float64
	count   float64
}

// WithNormalizeReward normalizes rewards by the running variance of the
// gamma-discounted return.
func WithNormalizeReward(inner VecEnv, gamma float64) VecEnv {
	return &normalizeReward{VecEnv: inner, gamma: gamma}
}

func (w *normalizeReward) Reset(keys []prng.Key) (*mat.Dense, State) {
	obs, inner := w.VecEnv.Reset(keys)
	return obs, &normalizeRewardState{
		inner:   inner,
		returns: make([]float64, w.NumEnvs()),
		mean:    make([]float64, 1),
		vari:    ones(1),
		count:   initialStatCount,
	}
}

func (w *normalizeReward) Step(keys []prng.Key, state State, actions *mat.Dense) (*mat.Dense, State, []float64, []bool, Info, error) {
	st := state.(*normalizeRewardState)
	obs, inner, rewards, dones, info, err := w.VecEnv.Step(keys, st.inner, actions)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	n := w.NumEnvs()
	next := &normalizeRewardState{
		inner:   inner,
		returns: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		notDone := 1.0
		if dones[i] {
			notDone = 0
		}
		next.returns[i] = st.returns[i]*w.gamma*notDone + rewards[i]
	}
	batch := mat.NewDense(n, 1, append([]float64(nil), next.returns...))
	next.mean, next.vari, next.count = updateColumnStats(st.mean, st.vari, st.count, batch)

	scaled := make([]float64, n)
	denom := math.Sqrt(next.vari[0] + normEps)
	for i := 0; i < n; i++ {
		scaled[i] = rewards[i] / denom
	}
	return obs, next, scaled, dones, info, nil
}

// updateColumnStats folds a batch into per-column running mean/variance
// using the parallel variance combination rule. Returns new slices; the
// inputs are not mutated.
func updateColumnStats(mean, vari []float64, count float64, batch *mat.Dense) ([]float64, []float64, float64) {
	rows, cols := batch.Dims()
	bCount := float64(rows)
	newMean := make([]float64, cols)
	newVar := make([]float64, cols)
	total := count + bCount

	for j := 0; j < cols; j++ {
		bMean := 0.0
		for i := 0; i < rows; i++ {
			bMean += batch.At(i, j)
		}
		bMean /= bCount
		bVar := 0.0
		for i := 0; i < rows; i++ {
			d := batch.At(i, j) - bMean
			bVar += d * d
		}
		bVar /= bCount

		delta := bMean - mean[j]
		m2 := vari[j]*count + bVar*bCount + delta*delta*count*bCount/total
		newMean[j] = mean[j] + delta*bCount/total
		newVar[j] = m2 / total
	}
	return newMean, newVar, total
}

func standardize(batch *mat.Dense, mean, vari []float64) *mat.Dense {
	rows, cols := batch.Dims()
	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		denom := math.Sqrt(vari[j] + normEps)
		for i := 0; i < rows; i++ {
			out.Set(i, j, (batch.At(i, j)-mean[j])/denom)
		}
	}
	return out
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}
