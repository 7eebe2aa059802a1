// Package network implements the actor-critic policy/value model: a pair of
// feed-forward towers sharing the observation input, with a diagonal Gaussian
// policy head and a scalar value head. The forward pass is batched; the
// backward pass runs per sample so callers can inspect per-sample gradients
// before averaging them.
package network

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"vectorized-ppo/internal/prng"
)

// Activation names accepted by Network.Activation.
const (
	ActivationTanh = "tanh"
	ActivationReLU = "relu"
)

// DefaultHidden is the width of both hidden layers.
const DefaultHidden = 256

// Network describes the model architecture. Parameters live in Params; a
// Network value is immutable and safe to share.
type Network struct {
	ObsDim     int
	ActDim     int
	Hidden     int
	Activation string
}

// New returns a network for the given observation/action dimensions.
func New(obsDim, actDim int, activation string) *Network {
	return &Network{ObsDim: obsDim, ActDim: actDim, Hidden: DefaultHidden, Activation: activation}
}

// Init creates freshly initialized parameters: orthogonal kernels with gain
// sqrt(2) for hidden layers, 0.01 for the actor head and 1.0 for the critic
// head, zero biases, and a zero log-std vector.
func (n *Network) Init(key prng.Key) *Params {
	rng := key.Rand()
	newLayer := func(in, out int, gain float64) Layer {
		return Layer{W: orthogonal(rng, in, out, gain), B: mat.NewVecDense(out, nil)}
	}
	sqrt2 := math.Sqrt2
	return &Params{
		Actor: []Layer{
			newLayer(n.ObsDim, n.Hidden, sqrt2),
			newLayer(n.Hidden, n.Hidden, sqrt2),
			newLayer(n.Hidden, n.ActDim, 0.01),
		},
		Critic: []Layer{
			newLayer(n.ObsDim, n.Hidden, sqrt2),
			newLayer(n.Hidden, n.Hidden, sqrt2),
			newLayer(n.Hidden, 1, 1.0),
		},
		LogStd: mat.NewVecDense(n.ActDim, nil),
	}
}

// ForwardCache holds the batched intermediate activations of one Apply call,
// retained for the per-sample backward pass and the dormancy diagnostic.
type ForwardCache struct {
	Obs          *mat.Dense
	ActorHidden  [2]*mat.Dense // post-activation
	Mean         *mat.Dense
	CriticHidden [2]*mat.Dense
	ValueCol     *mat.Dense // batch × 1
}

// Activations returns the per-layer activation snapshot, batch along the
// leading axis and neurons along the trailing axis. The key set is stable:
// actor_0, actor_1, actor_2, critic_0, critic_1, critic_2.
func (c *ForwardCache) Activations() map[string]*mat.Dense {
	return map[string]*mat.Dense{
		"actor_0":  c.ActorHidden[0],
		"actor_1":  c.ActorHidden[1],
		"actor_2":  c.Mean,
		"critic_0": c.CriticHidden[0],
		"critic_1": c.CriticHidden[1],
		"critic_2": c.ValueCol,
	}
}

// Apply evaluates the model on an observation batch (rows are samples).
// It returns the action distribution, per-row value estimates, and the
// forward cache carrying the activation snapshot.
func (n *Network) Apply(p *Params, obs *mat.Dense) (*DiagGaussian, []float64, *ForwardCache) {
	cache := &ForwardCache{Obs: obs}

	h := n.activate(affine(obs, p.Actor[0]))
	cache.ActorHidden[0] = h
	h = n.activate(affine(h, p.Actor[1]))
	cache.ActorHidden[1] = h
	cache.Mean = affine(h, p.Actor[2])

	h = n.activate(affine(obs, p.Critic[0]))
	cache.CriticHidden[0] = h
	h = n.activate(affine(h, p.Critic[1]))
	cache.CriticHidden[1] = h
	cache.ValueCol = affine(h, p.Critic[2])

	rows, _ := obs.Dims()
	values := make([]float64, rows)
	for i := range values {
		values[i] = cache.ValueCol.At(i, 0)
	}

	std := make([]float64, n.ActDim)
	for j := range std {
		std[j] = math.Exp(p.LogStd.AtVec(j))
	}
	dist := &DiagGaussian{Mean: cache.Mean, Std: std}
	return dist, values, cache
}

// BackwardSample writes the gradient of sample i's loss into dst, given the
// upstream gradients with respect to the policy mean, log-std, and value for
// that sample. dst is overwritten, not accumulated into.
func (n *Network) BackwardSample(p *Params, cache *ForwardCache, i int, dMean, dLogStd []float64, dValue float64, dst *Params) {
	dst.Zero()

	for j, g := range dLogStd {
		dst.LogStd.SetVec(j, g)
	}

	obs := rowOf(cache.Obs, i)
	n.backwardTower(p.Actor, [][]float64{obs, rowOf(cache.ActorHidden[0], i), rowOf(cache.ActorHidden[1], i)}, dMean, dst.Actor)
	n.backwardTower(p.Critic, [][]float64{obs, rowOf(cache.CriticHidden[0], i), rowOf(cache.CriticHidden[1], i)}, []float64{dValue}, dst.Critic)
}

// backwardTower backpropagates through one three-layer tower. inputs[k] is
// the input to layer k for this sample (post-activation for k > 0); dOut is
// the gradient at the tower's linear output.
func (n *Network) backwardTower(layers []Layer, inputs [][]float64, dOut []float64, grads []Layer) {
	d := dOut
	for k := len(layers) - 1; k >= 0; k-- {
		in := inputs[k]
		accumulateLayerGrad(grads[k], in, d)
		if k == 0 {
			return
		}
		d = backpropThrough(layers[k], d, in, n.Activation)
	}
}

// accumulateLayerGrad adds the outer product in ⊗ d into the kernel gradient
// and d into the bias gradient.
func accumulateLayerGrad(g Layer, in, d []float64) {
	raw := g.W.RawMatrix()
	for r, x := range in {
		row := raw.Data[r*raw.Stride : r*raw.Stride+raw.Cols]
		for c, dv := range d {
			row[c] += x * dv
		}
	}
	for c, dv := range d {
		g.B.SetVec(c, g.B.AtVec(c)+dv)
	}
}

// backpropThrough maps the gradient at a layer's output to the gradient at
// its input, applying the activation derivative at the input's
// post-activation values.
func backpropThrough(l Layer, d, act []float64, activation string) []float64 {
	rows, _ := l.W.Dims()
	out := make([]float64, rows)
	raw := l.W.RawMatrix()
	for r := 0; r < rows; r++ {
		row := raw.Data[r*raw.Stride : r*raw.Stride+raw.Cols]
		s := 0.0
		for c, dv := range d {
			s += row[c] * dv
		}
		out[r] = s * activationDeriv(act[r], activation)
	}
	return out
}

// activationDeriv evaluates the activation derivative from the
// post-activation value a: tanh' = 1-a², relu' = 1{a > 0}.
func activationDeriv(a float64, activation string) float64 {
	if activation == ActivationReLU {
		if a > 0 {
			return 1
		}
		return 0
	}
	return 1 - a*a
}

func (n *Network) activate(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := x.At(i, j)
			if n.Activation == ActivationReLU {
				if v < 0 {
					x.Set(i, j, 0)
				}
			} else {
				x.Set(i, j, math.Tanh(v))
			}
		}
	}
	return x
}

// affine computes x*W + b with the bias broadcast across rows.
func affine(x *mat.Dense, l Layer) *mat.Dense {
	rows, _ := x.Dims()
	_, out := l.W.Dims()
	y := mat.NewDense(rows, out, nil)
	y.Mul(x, l.W)
	for i := 0; i < rows; i++ {
		for j := 0; j < out; j++ {
			y.Set(i, j, y.At(i, j)+l.B.AtVec(j))
		}
	}
	return y
}

func rowOf(m *mat.Dense, i int) []float64 {
	raw := m.RawMatrix()
	return raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
}

// orthogonal draws an orthogonal matrix scaled by gain: QR of a Gaussian
// matrix with the sign of R's diagonal folded into Q's columns.
func orthogonal(rng *rand.Rand, rows, cols int, gain float64) *mat.Dense {
	r, c := rows, cols
	transpose := r < c
	if transpose {
		r, c = c, r
	}

	a := mat.NewDense(r, r, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < r; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}

	var qr mat.QR
	qr.Factorize(a)
	var q, rm mat.Dense
	qr.QTo(&q)
	qr.RTo(&rm)

	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < c; j++ {
		sign := 1.0
		if rm.At(j, j) < 0 {
			sign = -1.0
		}
		for i := 0; i < r; i++ {
			v := gain * sign * q.At(i, j)
			if transpose {
				out.Set(j, i, v)
			} else {
				out.Set(i, j, v)
			}
		}
	}
	return out
}
