package network

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const log2Pi = 1.8378770664093455

// DiagGaussian is a batch of diagonal-covariance normal distributions with a
// shared, state-independent standard deviation per action dimension.
type DiagGaussian struct {
	Mean *mat.Dense // batch × actDim
	Std  []float64  // actDim
}

// Sample draws one action per batch row.
func (d *DiagGaussian) Sample(rng *rand.Rand) *mat.Dense {
	rows, cols := d.Mean.Dims()
	actions := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			actions.Set(i, j, d.Mean.At(i, j)+d.Std[j]*rng.NormFloat64())
		}
	}
	return actions
}

// LogProb returns the per-row log density of the given actions.
func (d *DiagGaussian) LogProb(actions *mat.Dense) []float64 {
	rows, cols := d.Mean.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		lp := 0.0
		for j := 0; j < cols; j++ {
			z := (actions.At(i, j) - d.Mean.At(i, j)) / d.Std[j]
			lp += -0.5*z*z - math.Log(d.Std[j]) - 0.5*log2Pi
		}
		out[i] = lp
	}
	return out
}

// Entropy returns the per-row differential entropy. With a state-independent
// standard deviation every row has the same entropy.
func (d *DiagGaussian) Entropy() []float64 {
	rows, cols := d.Mean.Dims()
	h := 0.0
	for j := 0; j < cols; j++ {
		h += math.Log(d.Std[j]) + 0.5*(1+log2Pi)
	}
	out := make([]float64, rows)
	for i := range out {
		out[i] = h
	}
	return out
}
