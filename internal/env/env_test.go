package env

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"vectorized-ppo/internal/prng"
)

func stepKeys(key prng.Key, n int) []prng.Key {
	return key.SplitN(n)
}

func TestPendulumResetBounds(t *testing.T) {
	e := NewPendulum(16)
	obs, _ := e.Reset(stepKeys(prng.NewKey(0), 16))

	rows, cols := obs.Dims()
	if rows != 16 || cols != 3 {
		t.Fatalf("obs batch %dx%d, want 16x3", rows, cols)
	}
	for i := 0; i < rows; i++ {
		c, s, v := obs.At(i, 0), obs.At(i, 1), obs.At(i, 2)
		if math.Abs(c*c+s*s-1) > 1e-12 {
			t.Errorf("row %d: cos²+sin² = %g", i, c*c+s*s)
		}
		if v < -1 || v > 1 {
			t.Errorf("row %d: initial velocity %g outside [-1, 1]", i, v)
		}
	}
}

func TestPendulumResetDeterministic(t *testing.T) {
	e := NewPendulum(4)
	a, _ := e.Reset(stepKeys(prng.NewKey(7), 4))
	b, _ := e.Reset(stepKeys(prng.NewKey(7), 4))
	if !mat.EqualApprox(a, b, 0) {
		t.Error("identical keys must produce identical resets")
	}
}

func TestPendulumStepRewardAndDone(t *testing.T) {
	e := NewPendulum(2)
	obs, st := e.Reset(stepKeys(prng.NewKey(1), 2))
	_ = obs

	actions := mat.NewDense(2, 1, []float64{0.5, -0.5})
	key := prng.NewKey(2)
	for step := 0; step < maxEpisodeSteps; step++ {
		var rewards []float64
		var dones []bool
		var err error
		var k prng.Key
		k, key = key.Split()
		obs, st, rewards, dones, _, err = e.Step(stepKeys(k, 2), st, actions)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		for i, r := range rewards {
			if r > 0 || math.IsNaN(r) {
				t.Fatalf("step %d env %d: reward %g must be finite and <= 0", step, i, r)
			}
		}
		wantDone := step == maxEpisodeSteps-1
		for i, d := range dones {
			if d != wantDone {
				t.Fatalf("step %d env %d: done = %v, want %v", step, i, d, wantDone)
			}
		}
	}
	// After auto-reset the velocity is back inside the initial range.
	for i := 0; i < 2; i++ {
		if v := obs.At(i, 2); v < -1 || v > 1 {
			t.Errorf("env %d: post-reset velocity %g outside [-1, 1]", i, v)
		}
	}
}

func TestPendulumRejectsBadActionShape(t *testing.T) {
	e := NewPendulum(2)
	_, st := e.Reset(stepKeys(prng.NewKey(1), 2))
	_, _, _, _, _, err := e.Step(stepKeys(prng.NewKey(2), 2), st, mat.NewDense(3, 1, nil))
	if err == nil {
		t.Error("expected error for mismatched action batch")
	}
}

func TestClipActionBoundsTorque(t *testing.T) {
	base := NewPendulum(1)
	clipped := WithClipAction(base)
	_, stC := clipped.Reset(stepKeys(prng.NewKey(3), 1))
	_, stB := base.Reset(stepKeys(prng.NewKey(3), 1))

	keys := stepKeys(prng.NewKey(4), 1)
	_, _, rC, _, _, err := clipped.Step(keys, stC, mat.NewDense(1, 1, []float64{1e6}))
	if err != nil {
		t.Fatal(err)
	}
	_, _, rB, _, _, err := base.Step(keys, stB, mat.NewDense(1, 1, []float64{maxTorque}))
	if err != nil {
		t.Fatal(err)
	}
	if rC[0] != rB[0] {
		t.Errorf("huge action should behave like max torque: %g vs %g", rC[0], rB[0])
	}
}

func TestEpisodeStatsReportsCompletedEpisodes(t *testing.T) {
	e := WithEpisodeStats(NewPendulum(1))
	_, st := e.Reset(stepKeys(prng.NewKey(5), 1))

	actions := mat.NewDense(1, 1, []float64{0})
	key := prng.NewKey(6)
	total := 0.0
	var info Info
	for step := 0; step < maxEpisodeSteps; step++ {
		var rewards []float64
		var err error
		var k prng.Key
		k, key = key.Split()
		_, st, rewards, _, info, err = e.Step(stepKeys(k, 1), st, actions)
		if err != nil {
			t.Fatal(err)
		}
		total += rewards[0]

		if step < maxEpisodeSteps-1 {
			if info["returned_episode"][0] != 0 {
				t.Fatalf("step %d: episode flagged as returned before it finished", step)
			}
		}
	}

	if info["returned_episode"][0] != 1 {
		t.Error("final step should flag a completed episode")
	}
	if got := info["returned_episode_returns"][0]; math.Abs(got-total) > 1e-9 {
		t.Errorf("episode return %g, want %g", got, total)
	}
	if got := info["returned_episode_lengths"][0]; got != maxEpisodeSteps {
		t.Errorf("episode length %g, want %d", got, maxEpisodeSteps)
	}
	if got := info["timestep"][0]; got != maxEpisodeSteps {
		t.Errorf("timestep %g, want %d", got, maxEpisodeSteps)
	}
}

func TestNormalizeObsConverges(t *testing.T) {
	e := WithNormalizeObs(NewPendulum(8))
	obs, st := e.Reset(stepKeys(prng.NewKey(8), 8))

	actions := mat.NewDense(8, 1, nil)
	key := prng.NewKey(9)
	for step := 0; step < 300; step++ {
		var err error
		var k prng.Key
		k, key = key.Split()
		obs, st, _, _, _, err = e.Step(stepKeys(k, 8), st, actions)
		if err != nil {
			t.Fatal(err)
		}
	}

	// After many steps, standardized observations stay in a sane range.
	rows, cols := obs.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := math.Abs(obs.At(i, j)); v > 10 || math.IsNaN(v) {
				t.Fatalf("standardized obs out of range: %g", obs.At(i, j))
			}
		}
	}
}

func TestNormalizeRewardFinite(t *testing.T) {
	e := WithNormalizeReward(NewPendulum(4), 0.99)
	_, st := e.Reset(stepKeys(prng.NewKey(10), 4))

	actions := mat.NewDense(4, 1, []float64{1, -1, 0.5, 0})
	key := prng.NewKey(11)
	for step := 0; step < 100; step++ {
		var rewards []float64
		var err error
		var k prng.Key
		k, key = key.Split()
		_, st, rewards, _, _, err = e.Step(stepKeys(k, 4), st, actions)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range rewards {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				t.Fatalf("step %d: non-finite normalized reward", step)
			}
		}
	}
}

func TestUpdateColumnStats(t *testing.T) {
	mean := []float64{0}
	vari := []float64{1}
	count := initialStatCount

	// Feed a large constant batch; stats should approach mean 5, var 0.
	batch := mat.NewDense(1000, 1, nil)
	for i := 0; i < 1000; i++ {
		batch.Set(i, 0, 5)
	}
	mean, vari, count = updateColumnStats(mean, vari, count, batch)
	if math.Abs(mean[0]-5) > 1e-3 {
		t.Errorf("mean %g, want ~5", mean[0])
	}
	if vari[0] > 1e-2 {
		t.Errorf("variance %g, want ~0", vari[0])
	}
	if count != initialStatCount+1000 {
		t.Errorf("count %g, want %g", count, initialStatCount+1000)
	}
}

func TestBuildStack(t *testing.T) {
	e := Build(4, true, 0.99)
	if e.NumEnvs() != 4 || e.ObsDim() != 3 || e.ActDim() != 1 {
		t.Fatalf("unexpected stack dims: envs=%d obs=%d act=%d", e.NumEnvs(), e.ObsDim(), e.ActDim())
	}
	obs, st := e.Reset(stepKeys(prng.NewKey(12), 4))
	if r, c := obs.Dims(); r != 4 || c != 3 {
		t.Fatalf("obs %dx%d, want 4x3", r, c)
	}
	_, _, rewards, dones, info, err := e.Step(stepKeys(prng.NewKey(13), 4), st, mat.NewDense(4, 1, nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(rewards) != 4 || len(dones) != 4 {
		t.Fatal("batched outputs must match NumEnvs")
	}
	if _, ok := info["returned_episode_returns"]; !ok {
		t.Error("episode stats missing from stacked env info")
	}
}
