package ppo

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"vectorized-ppo/internal/network"
	"vectorized-ppo/internal/prng"
)

func TestDormancyRateDetectsDeadNeuron(t *testing.T) {
	// 4 samples x 3 neurons; neuron 1 is silent, the others are active.
	act := mat.NewDense(4, 3, []float64{
		1, 0, 2,
		-1, 0, 2,
		1, 0, -2,
		-1, 0, 2,
	})
	rates := DormancyRate(map[string]*mat.Dense{"layer": act}, 0.1)

	want := 1.0 / 3.0
	if got := rates["layer"]; got != want {
		t.Errorf("dormancy rate %g, want %g", got, want)
	}
}

func TestDormancyRateAllActive(t *testing.T) {
	act := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	rates := DormancyRate(map[string]*mat.Dense{"layer": act}, 0.1)
	if rates["layer"] != 0 {
		t.Errorf("uniform activations should have zero dormancy, got %g", rates["layer"])
	}
}

func TestDormancyRateBounds(t *testing.T) {
	rng := prng.NewKey(0).Rand()
	act := mat.NewDense(16, 8, nil)
	for i := 0; i < 16; i++ {
		for j := 0; j < 8; j++ {
			act.Set(i, j, rng.NormFloat64())
		}
	}
	rates := DormancyRate(map[string]*mat.Dense{"layer": act}, 0.25)
	if r := rates["layer"]; r < 0 || r > 1 {
		t.Errorf("dormancy rate %g outside [0, 1]", r)
	}
}

func TestGradSecondMomentRate(t *testing.T) {
	n := network.New(2, 1, network.ActivationTanh)
	n.Hidden = 4
	sumSq := network.ZerosLike(n.Init(prng.NewKey(1)))

	// Give every slot a moderate second moment, then one dominant slot per
	// tensor: with a big enough spread the rest fall under the threshold.
	for _, tensor := range sumSq.Tensors() {
		for j := range tensor.Data {
			tensor.Data[j] = 1
		}
		tensor.Data[0] = 1e6
	}

	rates := GradSecondMomentRate(sumSq, 0.1)
	for name, r := range rates {
		if r < 0 || r > 1 {
			t.Fatalf("%s: rate %g outside [0, 1]", name, r)
		}
	}
	// log_std has a single slot, which is its own mean: never thresholded.
	if rates["log_std"] != 0 {
		t.Errorf("single-slot tensor should report 0, got %g", rates["log_std"])
	}
	// A tensor with one dominant slot should report most slots thresholded.
	kernel := rates["actor_0/kernel"]
	if kernel <= 0.5 {
		t.Errorf("expected most actor_0/kernel slots thresholded, got %g", kernel)
	}
}

func TestGradSecondMomentUniformNotThresholded(t *testing.T) {
	n := network.New(2, 1, network.ActivationTanh)
	n.Hidden = 4
	sumSq := network.ZerosLike(n.Init(prng.NewKey(2)))
	for _, tensor := range sumSq.Tensors() {
		for j := range tensor.Data {
			tensor.Data[j] = 3.5
		}
	}
	for name, r := range GradSecondMomentRate(sumSq, 0.1) {
		if r != 0 {
			t.Errorf("%s: uniform second moments should threshold nothing, got %g", name, r)
		}
	}
}
