package ppo

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"vectorized-ppo/internal/network"
)

// defaultZeta is the gradient-second-moment threshold.
const defaultZeta = 0.1

// DormancyRate reports, per layer, the fraction of neurons whose mean
// absolute activation over the batch is at most tau times the layer's
// overall mean absolute activation. Read-only: a capacity diagnostic that
// never feeds back into the update.
func DormancyRate(activations map[string]*mat.Dense, tau float64) map[string]float64 {
	out := make(map[string]float64, len(activations))
	for name, act := range activations {
		rows, cols := act.Dims()

		layerMean := 0.0
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				layerMean += math.Abs(act.At(i, j))
			}
		}
		layerMean /= float64(rows * cols)

		dormant := 0
		for j := 0; j < cols; j++ {
			neuronMean := 0.0
			for i := 0; i < rows; i++ {
				neuronMean += math.Abs(act.At(i, j))
			}
			neuronMean /= float64(rows)
			if neuronMean/layerMean <= tau {
				dormant++
			}
		}
		out[name] = float64(dormant) / float64(cols)
	}
	return out
}

// GradSecondMomentRate reports, per parameter tensor, the fraction of
// parameter slots whose mean squared per-sample gradient is at most zeta
// times the tensor's overall mean. gradSqSum holds the elementwise sums of
// squared per-sample gradients over the minibatch; the sample count cancels
// out of the ratio.
func GradSecondMomentRate(gradSqSum *network.Params, zeta float64) map[string]float64 {
	tensors := gradSqSum.Tensors()
	out := make(map[string]float64, len(tensors))
	for _, t := range tensors {
		total := 0.0
		for _, v := range t.Data {
			total += v
		}
		overallMean := total / float64(len(t.Data))

		thresholded := 0
		for _, v := range t.Data {
			if v/overallMean <= zeta {
				thresholded++
			}
		}
		out[t.Name] = float64(thresholded) / float64(len(t.Data))
	}
	return out
}
