package ppo

import "gonum.org/v1/gonum/mat"

// Batch is the flattened (time × env) rollout: one sample per row, with the
// recorded acting-policy quantities and the advantage/target for each.
type Batch struct {
	Obs        *mat.Dense
	Actions    *mat.Dense
	Values     []float64
	LogProbs   []float64
	Advantages []float64
	Targets    []float64
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int {
	rows, _ := b.Obs.Dims()
	return rows
}

// Flatten collapses the time and environment axes into one batch axis,
// time-major: sample t*NumEnvs+i is step t of environment i.
func Flatten(traj Trajectory, advantages, targets [][]float64) Batch {
	steps := len(traj)
	numEnvs, obsDim := traj[0].Obs.Dims()
	_, actDim := traj[0].Action.Dims()
	size := steps * numEnvs

	b := Batch{
		Obs:        mat.NewDense(size, obsDim, nil),
		Actions:    mat.NewDense(size, actDim, nil),
		Values:     make([]float64, size),
		LogProbs:   make([]float64, size),
		Advantages: make([]float64, size),
		Targets:    make([]float64, size),
	}
	for t, tr := range traj {
		for i := 0; i < numEnvs; i++ {
			row := t*numEnvs + i
			for j := 0; j < obsDim; j++ {
				b.Obs.Set(row, j, tr.Obs.At(i, j))
			}
			for j := 0; j < actDim; j++ {
				b.Actions.Set(row, j, tr.Action.At(i, j))
			}
			b.Values[row] = tr.Value[i]
			b.LogProbs[row] = tr.LogProb[i]
			b.Advantages[row] = advantages[t][i]
			b.Targets[row] = targets[t][i]
		}
	}
	return b
}

// Reorder returns a new batch with rows taken in permutation order. The
// receiver is not modified.
func (b Batch) Reorder(perm []int) Batch {
	size := b.Size()
	_, obsDim := b.Obs.Dims()
	_, actDim := b.Actions.Dims()

	out := Batch{
		Obs:        mat.NewDense(size, obsDim, nil),
		Actions:    mat.NewDense(size, actDim, nil),
		Values:     make([]float64, size),
		LogProbs:   make([]float64, size),
		Advantages: make([]float64, size),
		Targets:    make([]float64, size),
	}
	for row, src := range perm {
		for j := 0; j < obsDim; j++ {
			out.Obs.Set(row, j, b.Obs.At(src, j))
		}
		for j := 0; j < actDim; j++ {
			out.Actions.Set(row, j, b.Actions.At(src, j))
		}
		out.Values[row] = b.Values[src]
		out.LogProbs[row] = b.LogProbs[src]
		out.Advantages[row] = b.Advantages[src]
		out.Targets[row] = b.Targets[src]
	}
	return out
}

// Minibatches splits the batch into k contiguous equal-size slices. The
// slices share the receiver's storage; callers treat them as read-only.
func (b Batch) Minibatches(k int) []Batch {
	size := b.Size()
	per := size / k
	out := make([]Batch, k)
	for m := 0; m < k; m++ {
		lo, hi := m*per, (m+1)*per
		out[m] = Batch{
			Obs:        b.Obs.Slice(lo, hi, 0, colsOf(b.Obs)).(*mat.Dense),
			Actions:    b.Actions.Slice(lo, hi, 0, colsOf(b.Actions)).(*mat.Dense),
			Values:     b.Values[lo:hi],
			LogProbs:   b.LogProbs[lo:hi],
			Advantages: b.Advantages[lo:hi],
			Targets:    b.Targets[lo:hi],
		}
	}
	return out
}

func colsOf(m *mat.Dense) int {
	_, c := m.Dims()
	return c
}
