package network

import "gonum.org/v1/gonum/mat"

// Layer holds one dense layer's weights. W is in×out so a batch of rows
// multiplies on the left.
type Layer struct {
	W *mat.Dense
	B *mat.VecDense
}

// Params is the full parameter tree of the actor-critic model. It is treated
// as an immutable value by the training loop: updates produce a new Params
// rather than mutating a shared one.
type Params struct {
	Actor  []Layer
	Critic []Layer
	LogStd *mat.VecDense
}

// Tensor is a flat view of one parameter tensor. Data aliases the
// underlying storage; Cols is the length of the trailing axis.
type Tensor struct {
	Name string
	Data []float64
	Cols int
}

// Tensors returns flat views over every parameter tensor in a stable order.
// The views alias p's storage.
func (p *Params) Tensors() []Tensor {
	tensors := make([]Tensor, 0, 2*(len(p.Actor)+len(p.Critic))+1)
	for i, l := range p.Actor {
		tensors = append(tensors, layerTensors(actorLayerName(i), l)...)
	}
	tensors = append(tensors, Tensor{Name: "log_std", Data: p.LogStd.RawVector().Data, Cols: p.LogStd.Len()})
	for i, l := range p.Critic {
		tensors = append(tensors, layerTensors(criticLayerName(i), l)...)
	}
	return tensors
}

func layerTensors(name string, l Layer) []Tensor {
	_, cols := l.W.Dims()
	return []Tensor{
		{Name: name + "/kernel", Data: l.W.RawMatrix().Data, Cols: cols},
		{Name: name + "/bias", Data: l.B.RawVector().Data, Cols: l.B.Len()},
	}
}

func actorLayerName(i int) string  { return "actor_" + digit(i) }
func criticLayerName(i int) string { return "critic_" + digit(i) }

func digit(i int) string { return string(rune('0' + i)) }

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {
	out := &Params{
		Actor:  make([]Layer, len(p.Actor)),
		Critic: make([]Layer, len(p.Critic)),
		LogStd: mat.VecDenseCopyOf(p.LogStd),
	}
	for i, l := range p.Actor {
		out.Actor[i] = Layer{W: mat.DenseCopyOf(l.W), B: mat.VecDenseCopyOf(l.B)}
	}
	for i, l := range p.Critic {
		out.Critic[i] = Layer{W: mat.DenseCopyOf(l.W), B: mat.VecDenseCopyOf(l.B)}
	}
	return out
}

// ZerosLike returns a Params with the same shape as p and all entries zero.
func ZerosLike(p *Params) *Params {
	out := &Params{
		Actor:  make([]Layer, len(p.Actor)),
		Critic: make([]Layer, len(p.Critic)),
	}
	for i, l := range p.Actor {
		r, c := l.W.Dims()
		out.Actor[i] = Layer{W: mat.NewDense(r, c, nil), B: mat.NewVecDense(l.B.Len(), nil)}
	}
	for i, l := range p.Critic {
		r, c := l.W.Dims()
		out.Critic[i] = Layer{W: mat.NewDense(r, c, nil), B: mat.NewVecDense(l.B.Len(), nil)}
	}
	out.LogStd = mat.NewVecDense(p.LogStd.Len(), nil)
	return out
}

// Zero resets every entry of p to zero in place.
func (p *Params) Zero() {
	for _, t := range p.Tensors() {
		for i := range t.Data {
			t.Data[i] = 0
		}
	}
}

// AddScaled adds scale*src into p elementwise. Shapes must match.
func (p *Params) AddScaled(src *Params, scale float64) {
	dst := p.Tensors()
	from := src.Tensors()
	for i := range dst {
		for j := range dst[i].Data {
			dst[i].Data[j] += scale * from[i].Data[j]
		}
	}
}

// AddSquared adds src*src into p elementwise. Shapes must match.
func (p *Params) AddSquared(src *Params) {
	dst := p.Tensors()
	from := src.Tensors()
	for i := range dst {
		for j := range dst[i].Data {
			v := from[i].Data[j]
			dst[i].Data[j] += v * v
		}
	}
}

// Scale multiplies every entry of p by scale in place.
func (p *Params) Scale(scale float64) {
	for _, t := range p.Tensors() {
		for i := range t.Data {
			t.Data[i] *= scale
		}
	}
}
